package models

// ActiveTimerSession is the single process-wide record of the running
// timer. At most one exists at a time; it is created on start, mutated
// in place by workspace-switch tracking, and consumed on stop.
type ActiveTimerSession struct {
	AccountKey    string `json:"accountKey"`
	BaseURL       string `json:"baseUrl"`
	TaskID        string `json:"taskId"`
	TaskLabel     string `json:"taskLabel"`
	StartedAtUnix int64  `json:"startedAtUnix"`

	// Per-workspace worklog tracking, populated only when worklog
	// auto-append is enabled.
	WorklogCurrentWorkspace      string           `json:"worklogCurrentWorkspace,omitempty"`
	WorklogSegmentStartedAtUnix  int64            `json:"worklogSegmentStartedAtUnix,omitempty"`
	WorklogDailyWorkspaceSeconds map[string]int64 `json:"worklogDailyWorkspaceSeconds,omitempty"`
}

// TaskReminder is a persisted one-shot wall-clock alarm bound to a task.
type TaskReminder struct {
	ID            string `json:"id"`
	AccountKey    string `json:"accountKey"`
	TaskID        string `json:"taskId"`
	TaskLabel     string `json:"taskLabel"`
	DueAtUnix     int64  `json:"dueAtUnix"`
	CreatedAtUnix int64  `json:"createdAtUnix"`
}
