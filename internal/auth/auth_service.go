// Package auth handles login against the Invoice Ninja API and keeps
// the resulting session in the local database. The login response shape
// varies between hosted and self-hosted installs, so token and account
// label extraction walk the payload instead of binding a fixed struct.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// ErrInvalidURL is returned when a self-hosted login carries a URL that
// cannot be parsed into an origin.
var ErrInvalidURL = errors.New("please provide a valid Invoice Ninja URL")

// ErrNoToken is returned when the login call succeeds but no API token
// can be located in the response payload.
var ErrNoToken = errors.New("login succeeded but no API token was found in the response")

// LoginClient is the slice of the API client the auth service needs.
type LoginClient interface {
	Login(baseURL string, input models.LoginInput) (map[string]interface{}, error)
	ListCompanies(baseURL string, session *models.AuthSession) ([]models.Company, error)
}

// SessionStore persists the authenticated session across restarts.
type SessionStore interface {
	Get() (*models.AuthSession, error)
	Save(session *models.AuthSession) error
	Clear() error
}

// Service authenticates against the remote API and caches the session
// in memory, backed by the session store.
type Service struct {
	client         LoginClient
	store          SessionStore
	defaultBaseURL string
	logger         *zap.Logger

	mu      sync.RWMutex
	session *models.AuthSession
}

func NewService(client LoginClient, store SessionStore, defaultBaseURL string, logger *zap.Logger) *Service {
	return &Service{
		client:         client,
		store:          store,
		defaultBaseURL: defaultBaseURL,
		logger:         logger,
	}
}

// Session returns the current session, loading it from the store on
// first use. Returns nil when logged out.
func (s *Service) Session() (*models.AuthSession, error) {
	s.mu.RLock()
	if s.session != nil {
		session := *s.session
		s.mu.RUnlock()
		return &session, nil
	}
	s.mu.RUnlock()

	stored, err := s.store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil || stored.BaseURL == "" || stored.Email == "" || stored.APIToken == "" {
		return nil, nil
	}
	if stored.Mode == "" {
		stored.Mode = models.AuthModeCloud
	}
	if stored.AccountLabel == "" {
		stored.AccountLabel = stored.Email
	}
	stored.AccountKey = AccountKey(stored.BaseURL, stored.Email)

	s.mu.Lock()
	s.session = stored
	s.mu.Unlock()

	session := *stored
	return &session, nil
}

// Login authenticates the credentials and persists the session. Cloud
// logins always target the configured default base URL; self-hosted
// logins require a usable URL in the input.
func (s *Service) Login(input models.LoginInput) (*models.AuthSession, error) {
	rawURL := s.defaultBaseURL
	if input.Mode == models.AuthModeSelfhost {
		rawURL = input.URL
	}
	baseURL := normalizeURL(rawURL)
	if baseURL == "" {
		return nil, ErrInvalidURL
	}

	response, err := s.client.Login(baseURL, input)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	token := findStringByKeys(response, "token", "api_token", "token_value")
	if token == "" {
		token = input.Secret
	}
	if token == "" {
		return nil, ErrNoToken
	}

	session := &models.AuthSession{
		Mode:         input.Mode,
		BaseURL:      baseURL,
		Email:        input.Email,
		APIToken:     token,
		APISecret:    input.Secret,
		AccountLabel: extractAccountLabel(response),
		AccountKey:   AccountKey(baseURL, input.Email),
	}
	if session.AccountLabel == "" {
		session.AccountLabel = input.Email
	}
	if resolved := s.resolveCompanyName(session); resolved != "" {
		session.AccountLabel = resolved
	}

	if err := s.store.Save(session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.logger.Info("Logged in",
		zap.String("base_url", baseURL),
		zap.String("account", session.AccountLabel))

	copied := *session
	return &copied, nil
}

// Logout clears the cached session and the persisted one.
func (s *Service) Logout() error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.logger.Info("Logged out")
	return nil
}

// AccountKey derives the stable account identity used to scope timers
// and reminders: origin without trailing slashes plus the lowercased
// user identifier.
func AccountKey(baseURL, userIdentifier string) string {
	return strings.TrimRight(baseURL, "/") + "|" + strings.ToLower(userIdentifier)
}

// normalizeURL reduces a user-supplied URL to its origin, or "" when it
// cannot be parsed.
func normalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func looksLikeToken(value string) bool {
	return strings.Contains(strings.ToLower(value), "token")
}

// extractAccountLabel picks a human-readable company name out of the
// login payload, preferring the well-known company paths and falling
// back to any generic name field that does not look like a token label.
func extractAccountLabel(payload map[string]interface{}) string {
	paths := [][]string{
		{"data", "company", "name"},
		{"data", "company", "company_name"},
		{"company", "name"},
		{"company", "company_name"},
		{"company_user", "company", "name"},
		{"data", "company_user", "company", "name"},
	}
	for _, path := range paths {
		if value := findNestedString(payload, path); value != "" && !looksLikeToken(value) {
			return value
		}
	}

	if generic := findStringByKeys(payload, "name", "company_name", "display_name"); generic != "" && !looksLikeToken(generic) {
		return generic
	}
	return ""
}

func findNestedString(payload interface{}, path []string) string {
	cursor := payload
	for _, key := range path {
		record, ok := cursor.(map[string]interface{})
		if !ok {
			return ""
		}
		cursor = record[key]
	}

	if value, ok := cursor.(string); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return ""
}

// findStringByKeys breadth-first searches the payload for the first
// non-empty string value under any of the given keys.
func findStringByKeys(payload interface{}, keys ...string) string {
	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[strings.ToLower(key)] = true
	}

	queue := []interface{}{payload}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		switch node := current.(type) {
		case map[string]interface{}:
			for key, value := range node {
				if text, ok := value.(string); ok && wanted[strings.ToLower(key)] && strings.TrimSpace(text) != "" {
					return text
				}
				switch value.(type) {
				case map[string]interface{}, []interface{}:
					queue = append(queue, value)
				}
			}
		case []interface{}:
			queue = append(queue, node...)
		}
	}
	return ""
}

func (s *Service) resolveCompanyName(session *models.AuthSession) string {
	companies, err := s.client.ListCompanies(session.BaseURL, session)
	if err != nil {
		return ""
	}

	for _, company := range companies {
		if name := strings.TrimSpace(company.Name); name != "" {
			return name
		}
		if name := strings.TrimSpace(company.CompanyName); name != "" {
			return name
		}
	}
	return ""
}
