package models

import "encoding/json"

// Task mirrors the Invoice Ninja task resource. Only the fields the
// agent reads or writes are declared; everything else passes through
// untouched on the server side (merge-patch semantics).
type Task struct {
	ID             string      `json:"id"`
	Number         string      `json:"number,omitempty"`
	Description    string      `json:"description"`
	ProjectID      string      `json:"project_id,omitempty"`
	ClientID       string      `json:"client_id,omitempty"`
	AssignedUserID string      `json:"assigned_user_id,omitempty"`
	IsDeleted      bool        `json:"is_deleted,omitempty"`
	StatusID       json.Number `json:"status_id,omitempty"`
	TaskStatusID   json.Number `json:"task_status_id,omitempty"`
	Rate           json.Number `json:"rate,omitempty"`
	Duration       json.Number `json:"duration,omitempty"`
	TimeLog        string      `json:"time_log,omitempty"`
	IsRunning      bool        `json:"is_running,omitempty"`
	UpdatedAt      int64       `json:"updated_at,omitempty"`
}

// TaskPatch is a partial task update. Nil fields are omitted from the
// request body so the server leaves them untouched.
type TaskPatch struct {
	Description    *string `json:"description,omitempty"`
	TimeLog        *string `json:"time_log,omitempty"`
	IsRunning      *bool   `json:"is_running,omitempty"`
	ProjectID      *string `json:"project_id,omitempty"`
	AssignedUserID *string `json:"assigned_user_id,omitempty"`
	StatusID       *string  `json:"status_id,omitempty"`
	TaskStatusID   *string  `json:"task_status_id,omitempty"`
	Rate           *float64 `json:"rate,omitempty"`
	ArchivedAt     *int64   `json:"archived_at,omitempty"`
}

// TaskQuery narrows a task listing.
type TaskQuery struct {
	Search    string
	StatusID  string
	ProjectID string
	PerPage   int
}

// TaskStatus is an Invoice Ninja task status (kanban column).
type TaskStatus struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// Project is an Invoice Ninja project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Company is an Invoice Ninja company record.
type Company struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// User is an Invoice Ninja user.
type User struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
