package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/auth"
	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/reminder"
	"github.com/svenbledt/invoiceninja-vscode/internal/timer"
	"github.com/svenbledt/invoiceninja-vscode/internal/tracker"
)

var (
	// ErrNotAuthenticated is returned for operations that need a session.
	ErrNotAuthenticated = errors.New("please log in first")
	// ErrNoActiveTimer is returned when a stop arrives while idle.
	ErrNoActiveTimer = errors.New("no active timer")
	// ErrTimerConflict is returned when a timer command targets a task
	// other than the one the single system-wide timer is bound to.
	ErrTimerConflict = errors.New("only one timer can run at a time; stop the active timer first")
	// ErrTaskNotFound is returned when a command names an unknown task.
	ErrTaskNotFound = errors.New("task not found")
)

// State is the full snapshot served to the editor plugin and the tray.
type State struct {
	Authenticated bool   `json:"authenticated"`
	Mode          string `json:"mode"`
	AccountLabel  string `json:"accountLabel"`
	BaseURL       string `json:"baseUrl"`

	Tasks    []models.Task       `json:"tasks"`
	Statuses []models.TaskStatus `json:"statuses"`
	Projects []models.Project    `json:"projects"`
	Users    []models.User       `json:"users"`

	SelectedTaskID    string `json:"selectedTaskId"`
	SelectedStatusID  string `json:"selectedStatusId"`
	SelectedProjectID string `json:"selectedProjectId"`
	LastSearchText    string `json:"lastSearchText"`

	IsTimerRunning      bool   `json:"isTimerRunning"`
	TimerTaskID         string `json:"timerTaskId"`
	TimerElapsedSeconds int64  `json:"timerElapsedSeconds"`
	StatusLine          string `json:"statusLine"`

	InfoMessage  string `json:"infoMessage"`
	ErrorMessage string `json:"errorMessage"`
}

// Agent ties the services together behind the operations the editor
// plugin invokes. It owns the last info/error messages and the
// 1-second state tick that keeps the elapsed display moving.
type Agent struct {
	auth      *auth.Service
	tasks     *TaskService
	timer     *timer.Service
	reminders *reminder.Scheduler
	tracker   *tracker.WorkspaceTracker
	logger    *zap.Logger

	msgMu       sync.RWMutex
	lastMessage string
	lastError   string

	ticking  atomic.Bool
	onState  func(State)
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAgent(
	authService *auth.Service,
	tasks *TaskService,
	timerService *timer.Service,
	reminders *reminder.Scheduler,
	workspaceTracker *tracker.WorkspaceTracker,
	logger *zap.Logger,
) *Agent {
	return &Agent{
		auth:      authService,
		tasks:     tasks,
		timer:     timerService,
		reminders: reminders,
		tracker:   workspaceTracker,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the state tick. onState, when non-nil, receives every
// computed snapshot (the tray subscribes here).
func (a *Agent) Start(onState func(State)) {
	a.onState = onState
	a.wg.Add(1)
	go a.tickLoop()
}

// Stop terminates the tick loop.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopChan) })
	a.wg.Wait()
}

// tickLoop recomputes the snapshot once a second. A tick whose work is
// still in flight when the next one fires is skipped, never queued.
func (a *Agent) tickLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.ticking.CompareAndSwap(false, true) {
				continue
			}
			state, err := a.State()
			if err != nil {
				a.logger.Debug("State tick failed", zap.Error(err))
			} else if a.onState != nil {
				a.onState(state)
			}
			a.ticking.Store(false)
		}
	}
}

// State builds the current snapshot.
func (a *Agent) State() (State, error) {
	info, errMsg := a.messages()

	session, err := a.auth.Session()
	if err != nil {
		return State{}, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return State{
			Authenticated: false,
			Mode:          string(models.AuthModeCloud),
			StatusLine:    "Invoice Ninja: idle",
			InfoMessage:   info,
			ErrorMessage:  errMsg,
		}, nil
	}

	prefs := a.tasks.Preferences(session.AccountKey)
	active, err := a.timer.ActiveTimer()
	if err != nil {
		return State{}, fmt.Errorf("failed to read active timer: %w", err)
	}

	state := State{
		Authenticated:     true,
		Mode:              string(session.Mode),
		AccountLabel:      session.AccountLabel,
		BaseURL:           session.BaseURL,
		Tasks:             a.tasks.VisibleTasks(),
		Statuses:          a.tasks.Statuses(),
		Projects:          a.tasks.Projects(),
		Users:             a.tasks.Users(),
		SelectedTaskID:    prefs.SelectedTaskID,
		SelectedStatusID:  prefs.SelectedStatusID,
		SelectedProjectID: prefs.SelectedProjectID,
		LastSearchText:    prefs.LastSearchText,
		InfoMessage:       info,
		ErrorMessage:      errMsg,
		StatusLine:        "Invoice Ninja: idle",
	}
	if state.AccountLabel == "" {
		state.AccountLabel = "Invoice Ninja"
	}

	if active != nil {
		state.IsTimerRunning = true
		state.TimerTaskID = active.TaskID
		state.TimerElapsedSeconds = a.timer.ElapsedSeconds(active)
		state.StatusLine = fmt.Sprintf("%s %s", active.TaskLabel, timer.FormatDuration(state.TimerElapsedSeconds))
	}

	return state, nil
}

// Login authenticates and loads the initial task list. A failed
// initial refresh does not undo the login.
func (a *Agent) Login(input models.LoginInput) (*models.AuthSession, error) {
	session, err := a.auth.Login(input)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	if err := a.tasks.Refresh(session, nil); err != nil {
		a.logger.Warn("Initial task refresh failed", zap.Error(err))
	}

	a.setInfo(fmt.Sprintf("Logged in as %s", session.AccountLabel))
	return session, nil
}

// Logout clears the session, cached account state and the local timer
// record. The remote time log is left as-is.
func (a *Agent) Logout() error {
	session, err := a.auth.Session()
	if err != nil {
		return err
	}

	if session != nil {
		a.tasks.ClearAccountState(session.AccountKey)
	}
	if err := a.timer.ClearActiveTimer(); err != nil {
		a.logger.Warn("Failed to clear timer on logout", zap.Error(err))
	}
	if err := a.auth.Logout(); err != nil {
		a.setError(err)
		return err
	}

	a.setInfo("Logged out")
	return nil
}

// RefreshTasks reloads the task list. searchOverride, when non-nil,
// replaces the stored search text.
func (a *Agent) RefreshTasks(searchOverride *string) error {
	session, err := a.requireSession()
	if err != nil {
		return err
	}

	if err := a.tasks.Refresh(session, searchOverride); err != nil {
		a.setError(err)
		return err
	}
	return nil
}

// SetFilters stores the account's status/project selections and
// reloads the list with them applied.
func (a *Agent) SetFilters(statusID, projectID string) error {
	session, err := a.requireSession()
	if err != nil {
		return err
	}

	prefs := a.tasks.Preferences(session.AccountKey)
	prefs.SelectedStatusID = NormalizeFilterSelection(statusID)
	prefs.SelectedProjectID = NormalizeFilterSelection(projectID)
	a.tasks.SavePreferences(session.AccountKey, prefs)

	return a.RefreshTasks(nil)
}

// SelectTask records the task timer commands default to.
func (a *Agent) SelectTask(taskID string) error {
	session, err := a.requireSession()
	if err != nil {
		return err
	}

	prefs := a.tasks.Preferences(session.AccountKey)
	prefs.SelectedTaskID = taskID
	a.tasks.SavePreferences(session.AccountKey, prefs)
	return nil
}

// CreateTask adds a task under the current filters.
func (a *Agent) CreateTask(description string) (*models.Task, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}

	created, err := a.tasks.Create(session, description)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	a.setInfo("Task created")
	return created, nil
}

// UpdateTask applies a merge patch to a task.
func (a *Agent) UpdateTask(taskID string, patch models.TaskPatch) (*models.Task, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}

	updated, err := a.tasks.Update(session, taskID, patch)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	a.setInfo("Task updated")
	return updated, nil
}

// DeleteTask removes the task and cancels every reminder bound to it.
func (a *Agent) DeleteTask(taskID string) error {
	session, err := a.requireSession()
	if err != nil {
		return err
	}

	if err := a.tasks.Delete(session, taskID); err != nil {
		a.setError(err)
		return err
	}
	if err := a.reminders.CancelForTask(session.AccountKey, taskID); err != nil {
		a.logger.Warn("Failed to cancel task reminders", zap.String("task_id", taskID), zap.Error(err))
	}

	a.setInfo("Task deleted")
	return nil
}

// ArchiveTask archives the task.
func (a *Agent) ArchiveTask(taskID string) error {
	session, err := a.requireSession()
	if err != nil {
		return err
	}

	if err := a.tasks.Archive(session, taskID); err != nil {
		a.setError(err)
		return err
	}

	a.setInfo("Task archived")
	return nil
}

// StartTimer starts the timer on the given task, or on the selected
// task when taskID is empty.
func (a *Agent) StartTimer(taskID string) (*models.ActiveTimerSession, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}

	prefs := a.tasks.Preferences(session.AccountKey)
	id := taskID
	if id == "" {
		id = prefs.SelectedTaskID
	}
	task := a.tasks.FindTask(id)
	if task == nil {
		a.setError(ErrTaskNotFound)
		return nil, ErrTaskNotFound
	}

	prefs.SelectedTaskID = task.ID
	a.tasks.SavePreferences(session.AccountKey, prefs)

	active, err := a.timer.StartTimer(session, task)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	task.IsRunning = true
	a.tasks.UpsertTask(*task)

	a.setInfo(fmt.Sprintf("Timer started: %s", active.TaskLabel))
	return active, nil
}

// StopTimer stops the active timer. A stop that names a different task
// than the running one is rejected before reaching the state machine.
func (a *Agent) StopTimer(taskID string) (*models.Task, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}

	active, err := a.timer.ActiveTimer()
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveTimer
	}
	if taskID != "" && taskID != active.TaskID {
		return nil, ErrTimerConflict
	}

	updated, err := a.timer.StopTimer(session, active.TaskID)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	a.tasks.UpsertTask(*updated)
	a.setInfo("Timer stopped")
	return updated, nil
}

// CreateReminder arms a reminder on the task from a natural-language
// duration ("30 minutes", "2h", ...).
func (a *Agent) CreateReminder(taskID, value string) (*models.TaskReminder, error) {
	return a.createReminder(taskID, func(accountKey, label string) (*models.TaskReminder, error) {
		return a.reminders.Create(accountKey, taskID, label, value)
	})
}

// CreateReminderMinutes arms a reminder from a user-entered custom
// minute count.
func (a *Agent) CreateReminderMinutes(taskID string, minutes int) (*models.TaskReminder, error) {
	return a.createReminder(taskID, func(accountKey, label string) (*models.TaskReminder, error) {
		return a.reminders.CreateWithMinutes(accountKey, taskID, label, minutes)
	})
}

func (a *Agent) createReminder(taskID string, create func(accountKey, label string) (*models.TaskReminder, error)) (*models.TaskReminder, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}

	task := a.tasks.FindTask(taskID)
	if task == nil {
		a.setError(ErrTaskNotFound)
		return nil, ErrTaskNotFound
	}

	label := task.Description
	if label == "" {
		label = task.Number
	}
	if label == "" {
		label = task.ID
	}

	created, err := create(session.AccountKey, label)
	if err != nil {
		a.setError(err)
		return nil, err
	}

	minutes := (created.DueAtUnix - created.CreatedAtUnix) / 60
	plural := "s"
	if minutes == 1 {
		plural = ""
	}
	a.setInfo(fmt.Sprintf("Reminder set in %d minute%s", minutes, plural))
	return created, nil
}

// HandleReminderOpen selects the reminded task so the plugin's next
// state poll surfaces it. Wired as the scheduler's open callback.
func (a *Agent) HandleReminderOpen(rem models.TaskReminder) {
	if err := a.SelectTask(rem.TaskID); err != nil {
		a.logger.Debug("Failed to select reminded task", zap.Error(err))
		return
	}
	a.setInfo(fmt.Sprintf("Reminder: %s", rem.TaskLabel))
}

// ReportActiveDocument feeds an editor focus snapshot into workspace
// tracking.
func (a *Agent) ReportActiveDocument(doc tracker.ActiveDocument) {
	a.tracker.Update(doc)
}

func (a *Agent) requireSession() (*models.AuthSession, error) {
	session, err := a.auth.Session()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}
	return session, nil
}

func (a *Agent) messages() (info, errMsg string) {
	a.msgMu.RLock()
	defer a.msgMu.RUnlock()
	return a.lastMessage, a.lastError
}

func (a *Agent) setInfo(message string) {
	a.msgMu.Lock()
	a.lastMessage = message
	a.lastError = ""
	a.msgMu.Unlock()
}

func (a *Agent) setError(err error) {
	a.msgMu.Lock()
	a.lastError = err.Error()
	a.msgMu.Unlock()
}
