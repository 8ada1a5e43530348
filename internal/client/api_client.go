package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"

	"go.uber.org/zap"
)

// APIClient talks to the Invoice Ninja REST API. The base URL is passed
// per call because the agent can be pointed at different installs
// (cloud vs self-hosted) across logins.
type APIClient struct {
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client with the given request timeout.
func NewAPIClient(timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Login authenticates with email/password (+ optional OTP and API
// secret) and returns the raw response payload. The payload shape
// varies between server versions, so token and company extraction is
// left to the auth service.
func (c *APIClient) Login(baseURL string, input models.LoginInput) (map[string]interface{}, error) {
	body := map[string]string{
		"email":             input.Email,
		"password":          input.Password,
		"one_time_password": input.OTP,
	}

	headers := map[string]string{}
	if input.Secret != "" {
		headers["X-API-SECRET"] = input.Secret
	}

	raw, err := c.do(baseURL, http.MethodPost, "/api/v1/login?include=company,user,token", nil, body, headers)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	return payload, nil
}

// ListTasks fetches tasks matching the query.
func (c *APIClient) ListTasks(baseURL string, session *models.AuthSession, query models.TaskQuery) ([]models.Task, error) {
	perPage := query.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	params := url.Values{}
	params.Set("per_page", fmt.Sprintf("%d", perPage))
	if query.Search != "" {
		params.Set("query", query.Search)
	}
	if query.StatusID != "" {
		params.Set("status_id", query.StatusID)
		params.Set("task_status_id", query.StatusID)
	}
	if query.ProjectID != "" {
		params.Set("project_id", query.ProjectID)
	}

	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/tasks?"+params.Encode(), session, nil, nil)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := json.Unmarshal(unwrapList(raw), &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse task list: %w", err)
	}
	return tasks, nil
}

// GetTask fetches a single task by id.
func (c *APIClient) GetTask(baseURL string, session *models.AuthSession, taskID string) (*models.Task, error) {
	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), session, nil, nil)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(unwrapEntity(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to parse task: %w", err)
	}
	return &task, nil
}

// CreateTaskRequest is the payload for task creation.
type CreateTaskRequest struct {
	Description string `json:"description"`
	ProjectID   string `json:"project_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	StatusID    string `json:"status_id,omitempty"`
}

// CreateTask creates a new task.
func (c *APIClient) CreateTask(baseURL string, session *models.AuthSession, payload CreateTaskRequest) (*models.Task, error) {
	raw, err := c.do(baseURL, http.MethodPost, "/api/v1/tasks", session, payload, nil)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(unwrapEntity(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to parse created task: %w", err)
	}
	return &task, nil
}

// UpdateTask applies a partial update to a task. Fields left nil in the
// patch are not sent, so the server keeps their current values.
func (c *APIClient) UpdateTask(baseURL string, session *models.AuthSession, taskID string, patch models.TaskPatch) (*models.Task, error) {
	raw, err := c.do(baseURL, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(taskID), session, patch, nil)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(unwrapEntity(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to parse updated task: %w", err)
	}
	return &task, nil
}

// DeleteTask deletes a task by id.
func (c *APIClient) DeleteTask(baseURL string, session *models.AuthSession, taskID string) error {
	_, err := c.do(baseURL, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(taskID), session, nil, nil)
	return err
}

// BulkTaskAction runs a bulk action ("archive", "restore", "delete")
// over the given task ids.
func (c *APIClient) BulkTaskAction(baseURL string, session *models.AuthSession, action string, taskIDs []string) error {
	_, err := c.do(baseURL, http.MethodPost, "/api/v1/tasks/bulk?action="+url.QueryEscape(action), session, taskIDs, nil)
	return err
}

// ListTaskStatuses fetches the account's task statuses.
func (c *APIClient) ListTaskStatuses(baseURL string, session *models.AuthSession) ([]models.TaskStatus, error) {
	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/task_statuses?per_page=100", session, nil, nil)
	if err != nil {
		return nil, err
	}

	var statuses []models.TaskStatus
	if err := json.Unmarshal(unwrapList(raw), &statuses); err != nil {
		return nil, fmt.Errorf("failed to parse task statuses: %w", err)
	}
	return statuses, nil
}

// ListProjects fetches the account's projects.
func (c *APIClient) ListProjects(baseURL string, session *models.AuthSession) ([]models.Project, error) {
	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/projects?per_page=100", session, nil, nil)
	if err != nil {
		return nil, err
	}

	var projects []models.Project
	if err := json.Unmarshal(unwrapList(raw), &projects); err != nil {
		return nil, fmt.Errorf("failed to parse projects: %w", err)
	}
	return projects, nil
}

// ListUsers fetches the account's users.
func (c *APIClient) ListUsers(baseURL string, session *models.AuthSession) ([]models.User, error) {
	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/users?per_page=100", session, nil, nil)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := json.Unmarshal(unwrapList(raw), &users); err != nil {
		return nil, fmt.Errorf("failed to parse users: %w", err)
	}
	return users, nil
}

// ListCompanies fetches the companies visible to the session.
func (c *APIClient) ListCompanies(baseURL string, session *models.AuthSession) ([]models.Company, error) {
	raw, err := c.do(baseURL, http.MethodGet, "/api/v1/companies?per_page=100", session, nil, nil)
	if err != nil {
		return nil, err
	}

	var companies []models.Company
	if err := json.Unmarshal(unwrapList(raw), &companies); err != nil {
		return nil, fmt.Errorf("failed to parse companies: %w", err)
	}
	return companies, nil
}

func (c *APIClient) do(baseURL, method, path string, session *models.AuthSession, body interface{}, extraHeaders map[string]string) (json.RawMessage, error) {
	endpoint := strings.TrimRight(baseURL, "/") + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.Header.Set("X-API-TOKEN", session.APIToken)
		if session.APISecret != "" {
			req.Header.Set("X-API-SECRET", session.APISecret)
		}
	}
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("API request completed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		if len(respBody) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(respBody), nil
	}

	message := parseErrorMessage(respBody, resp.StatusCode)
	c.logger.Warn("API returned error status",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.String("message", message),
	)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{Message: message, StatusCode: resp.StatusCode}
	case http.StatusNotFound:
		return nil, &NotFoundError{Message: message, StatusCode: resp.StatusCode}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Message: message, StatusCode: resp.StatusCode}
	default:
		return nil, &BackendError{Message: message, StatusCode: resp.StatusCode}
	}
}

// parseErrorMessage pulls a human-readable message out of an error
// payload, falling back to a generic status description.
func parseErrorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.TrimSpace(payload.Message) != "" {
			return payload.Message
		}
		if strings.TrimSpace(payload.Error) != "" {
			return payload.Error
		}
	}

	if status == http.StatusUnauthorized {
		return "Authentication failed"
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// unwrapEntity handles the two shapes the API returns for single
// resources: the entity itself, or an envelope {"data": entity}.
func unwrapEntity(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return envelope.Data
	}
	return raw
}

// unwrapList handles list responses that are either a bare array or a
// paginated envelope {"data": [...]}.
func unwrapList(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return envelope.Data
	}
	return json.RawMessage("[]")
}
