package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// SessionRepository persists the authenticated session. The agent acts
// for one account at a time, so reads return the most recently stored
// session.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns the stored session, or nil when logged out.
func (r *SessionRepository) Get() (*models.AuthSession, error) {
	var data string
	err := r.db.QueryRow(`SELECT session_data FROM auth_sessions ORDER BY updated_at DESC LIMIT 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.AuthSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, nil
	}
	return &session, nil
}

// Save stores the session, replacing any previous one for the same
// account key.
func (r *SessionRepository) Save(session *models.AuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO auth_sessions (account_key, session_data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_key) DO UPDATE SET session_data = excluded.session_data, updated_at = CURRENT_TIMESTAMP
	`, session.AccountKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes all stored sessions.
func (r *SessionRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM auth_sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}
