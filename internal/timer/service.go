// Package timer implements the timer session state machine: at most one
// running timer system-wide, backed by an open segment in the task's
// remote time log and an ActiveTimerSession document in local storage.
package timer

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/worklog"
)

// TaskStore is the slice of the remote task store the timer needs. The
// store is the system of record for time_log and description; the timer
// always refetches before mutating either field.
type TaskStore interface {
	GetTask(baseURL string, session *models.AuthSession, taskID string) (*models.Task, error)
	UpdateTask(baseURL string, session *models.AuthSession, taskID string, patch models.TaskPatch) (*models.Task, error)
}

// TimerStore persists the single active-timer document.
type TimerStore interface {
	GetActiveTimer() (*models.ActiveTimerSession, error)
	SaveActiveTimer(timer *models.ActiveTimerSession) error
	ClearActiveTimer() error
}

// Service drives timer start/stop against the remote store and keeps
// the local active-timer record in sync. Start, stop and clear bump a
// version counter; workspace-switch updates computed against an older
// version are discarded instead of applied.
type Service struct {
	tasks            TaskStore
	store            TimerStore
	currentWorkspace func() string
	worklogEnabled   bool
	retentionDays    int
	logger           *zap.Logger

	now func() int64

	version atomic.Int64
	mu      sync.Mutex
	wsMu    sync.Mutex
}

// NewService creates a timer service. currentWorkspace supplies the
// resolved label of the active editor workspace; it is only consulted
// when worklog auto-append is enabled.
func NewService(tasks TaskStore, store TimerStore, currentWorkspace func() string, worklogEnabled bool, retentionDays int, logger *zap.Logger) *Service {
	if retentionDays < 1 {
		retentionDays = worklog.DefaultRetentionDays
	}
	return &Service{
		tasks:            tasks,
		store:            store,
		currentWorkspace: currentWorkspace,
		worklogEnabled:   worklogEnabled,
		retentionDays:    retentionDays,
		logger:           logger,
		now:              func() int64 { return time.Now().Unix() },
	}
}

// ActiveTimer returns the persisted timer record, or nil when idle.
func (s *Service) ActiveTimer() (*models.ActiveTimerSession, error) {
	return s.store.GetActiveTimer()
}

// StartTimer opens a timer on the task. The task is refetched first and
// the server's time log is taken as truth: if it already holds an open
// segment that segment is reused, so starting an already-running task
// is idempotent and the recorded start time is the true segment start.
// Local state is only written after the server accepted the update.
func (s *Service) StartTimer(session *models.AuthSession, task *models.Task) (*models.ActiveTimerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	serverTask, err := s.tasks.GetTask(session.BaseURL, session, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task before start: %w", err)
	}

	segments := ParseTimeLog(serverTask.TimeLog)
	startedAt := now
	if open := openSegmentIndex(segments); open >= 0 {
		startedAt = segments[open][0]
	} else {
		segments = append(segments, TimeSegment{now, 0})
	}

	description := serverTask.Description
	timeLog := EncodeTimeLog(segments)
	running := true

	if _, err := s.tasks.UpdateTask(session.BaseURL, session, task.ID, models.TaskPatch{
		Description: &description,
		TimeLog:     &timeLog,
		IsRunning:   &running,
	}); err != nil {
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	active := &models.ActiveTimerSession{
		AccountKey:    session.AccountKey,
		BaseURL:       session.BaseURL,
		TaskID:        task.ID,
		TaskLabel:     taskLabel(task),
		StartedAtUnix: startedAt,
	}
	if s.worklogEnabled {
		active.WorklogCurrentWorkspace = s.resolveWorkspace()
		active.WorklogSegmentStartedAtUnix = now
		active.WorklogDailyWorkspaceSeconds = map[string]int64{}
	}

	s.version.Add(1)
	if err := s.store.SaveActiveTimer(active); err != nil {
		return nil, fmt.Errorf("failed to persist active timer: %w", err)
	}

	s.logger.Info("Timer started",
		zap.String("task_id", task.ID),
		zap.Int64("started_at", startedAt))
	return active, nil
}

// StopTimer closes the task's open time-log segment at now, merges the
// accumulated per-workspace worklog into the description when the
// active record belongs to this exact session and task, and writes
// is_running=false. The local record is cleared only after the server
// accepted the update.
func (s *Service) StopTimer(session *models.AuthSession, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	serverTask, err := s.tasks.GetTask(session.BaseURL, session, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task before stop: %w", err)
	}

	segments := ParseTimeLog(serverTask.TimeLog)
	if open := openSegmentIndex(segments); open >= 0 {
		segments[open][1] = now
	} else {
		segments = append(segments, TimeSegment{now, now})
	}

	active, err := s.store.GetActiveTimer()
	if err != nil {
		return nil, fmt.Errorf("failed to read active timer: %w", err)
	}

	description := serverTask.Description
	if s.worklogEnabled && active != nil &&
		active.TaskID == taskID &&
		active.AccountKey == session.AccountKey &&
		active.BaseURL == session.BaseURL {
		additions := cloneWorklog(active.WorklogDailyWorkspaceSeconds)
		s.closeWorkspaceSegment(additions, active, now)
		if len(additions) > 0 {
			description = worklog.Merge(serverTask.Description, additions, now, s.retentionDays)
		}
	}

	timeLog := EncodeTimeLog(segments)
	running := false

	updated, err := s.tasks.UpdateTask(session.BaseURL, session, taskID, models.TaskPatch{
		Description: &description,
		TimeLog:     &timeLog,
		IsRunning:   &running,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stop timer: %w", err)
	}

	s.version.Add(1)
	if err := s.store.ClearActiveTimer(); err != nil {
		return nil, fmt.Errorf("failed to clear active timer: %w", err)
	}

	s.logger.Info("Timer stopped", zap.String("task_id", taskID))
	return updated, nil
}

// ClearActiveTimer drops the local record without touching the remote
// store. Used when the process restarts without auto-resume.
func (s *Service) ClearActiveTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version.Add(1)
	if err := s.store.ClearActiveTimer(); err != nil {
		return fmt.Errorf("failed to clear active timer: %w", err)
	}
	return nil
}

// ElapsedSeconds returns seconds since the timer started, 0 when idle.
// Never negative.
func (s *Service) ElapsedSeconds(timer *models.ActiveTimerSession) int64 {
	if timer == nil {
		return 0
	}
	elapsed := s.now() - timer.StartedAtUnix
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// HandleWorkspaceChange records an active-workspace switch against the
// running timer. The previous workspace segment is folded into the
// worklog map and a new segment starts at now. Updates are serialized,
// and an update that observed version N is discarded if a start, stop
// or clear advanced the version before it could commit.
func (s *Service) HandleWorkspaceChange(label string) error {
	if !s.worklogEnabled {
		return nil
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	versionAtStart := s.version.Load()
	active, err := s.store.GetActiveTimer()
	if err != nil {
		return fmt.Errorf("failed to read active timer: %w", err)
	}
	if active == nil || versionAtStart != s.version.Load() {
		return nil
	}

	now := s.now()
	next := strings.TrimSpace(label)
	if next == "" {
		next = s.resolveWorkspace()
	}
	current := strings.TrimSpace(active.WorklogCurrentWorkspace)
	segmentStart := active.WorklogSegmentStartedAtUnix
	additions := cloneWorklog(active.WorklogDailyWorkspaceSeconds)

	changed := false
	switch {
	case current == "" || segmentStart <= 0:
		active.WorklogCurrentWorkspace = next
		active.WorklogSegmentStartedAtUnix = now
		active.WorklogDailyWorkspaceSeconds = additions
		changed = true
	case next != current:
		worklog.AddInterval(additions, current, segmentStart, now)
		active.WorklogCurrentWorkspace = next
		active.WorklogSegmentStartedAtUnix = now
		active.WorklogDailyWorkspaceSeconds = additions
		changed = true
	}

	if !changed || versionAtStart != s.version.Load() {
		return nil
	}

	latest, err := s.store.GetActiveTimer()
	if err != nil {
		return fmt.Errorf("failed to re-read active timer: %w", err)
	}
	if latest == nil || versionAtStart != s.version.Load() || !sameTimer(latest, active) {
		return nil
	}

	if err := s.store.SaveActiveTimer(active); err != nil {
		return fmt.Errorf("failed to persist workspace change: %w", err)
	}

	s.logger.Debug("Workspace segment rotated",
		zap.String("workspace", next),
		zap.String("task_id", active.TaskID))
	return nil
}

// closeWorkspaceSegment folds the in-progress workspace segment into
// the worklog map. A segment with no usable start, or one that has not
// accumulated any time yet, contributes nothing.
func (s *Service) closeWorkspaceSegment(additions map[string]int64, active *models.ActiveTimerSession, nowUnix int64) {
	workspace := strings.TrimSpace(active.WorklogCurrentWorkspace)
	if workspace == "" {
		workspace = s.resolveWorkspace()
	}

	segmentStart := active.WorklogSegmentStartedAtUnix
	if segmentStart <= 0 {
		segmentStart = active.StartedAtUnix
	}
	if workspace == "" || segmentStart <= 0 || segmentStart >= nowUnix {
		return
	}

	worklog.AddInterval(additions, workspace, segmentStart, nowUnix)
}

func (s *Service) resolveWorkspace() string {
	if s.currentWorkspace == nil {
		return ""
	}
	return s.currentWorkspace()
}

func taskLabel(task *models.Task) string {
	if label := strings.TrimSpace(task.Description); label != "" {
		return label
	}
	return "Task"
}

func cloneWorklog(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for key, seconds := range src {
		dst[key] = seconds
	}
	return dst
}

func sameTimer(a, b *models.ActiveTimerSession) bool {
	return a.AccountKey == b.AccountKey &&
		a.BaseURL == b.BaseURL &&
		a.TaskID == b.TaskID &&
		a.StartedAtUnix == b.StartedAtUnix
}
