package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/client"
	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

var doneStatusPattern = regexp.MustCompile(`(?i)done|complete`)

// TaskAPI is the slice of the API client the task service consumes.
type TaskAPI interface {
	ListTasks(baseURL string, session *models.AuthSession, query models.TaskQuery) ([]models.Task, error)
	CreateTask(baseURL string, session *models.AuthSession, payload client.CreateTaskRequest) (*models.Task, error)
	UpdateTask(baseURL string, session *models.AuthSession, taskID string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(baseURL string, session *models.AuthSession, taskID string) error
	BulkTaskAction(baseURL string, session *models.AuthSession, action string, taskIDs []string) error
	ListTaskStatuses(baseURL string, session *models.AuthSession) ([]models.TaskStatus, error)
	ListProjects(baseURL string, session *models.AuthSession) ([]models.Project, error)
	ListUsers(baseURL string, session *models.AuthSession) ([]models.User, error)
}

// AccountPreferences are the per-account UI selections that scope
// listings and the default task for timer commands.
type AccountPreferences struct {
	SelectedStatusID  string `json:"selectedStatusId"`
	SelectedProjectID string `json:"selectedProjectId"`
	SelectedTaskID    string `json:"selectedTaskId"`
	LastSearchText    string `json:"lastSearchText"`
}

// TaskService caches the task list and its filter sources. The remote
// store stays authoritative; the cache exists so state snapshots and
// timer commands do not hit the API on every tick.
type TaskService struct {
	api              TaskAPI
	defaultClientID  string
	defaultProjectID string
	logger           *zap.Logger

	mu       sync.RWMutex
	tasks    []models.Task
	statuses []models.TaskStatus
	projects []models.Project
	users    []models.User
	prefs    map[string]AccountPreferences
}

func NewTaskService(api TaskAPI, defaultClientID, defaultProjectID string, logger *zap.Logger) *TaskService {
	return &TaskService{
		api:              api,
		defaultClientID:  defaultClientID,
		defaultProjectID: defaultProjectID,
		logger:           logger,
		prefs:            make(map[string]AccountPreferences),
	}
}

// Tasks returns a copy of the cached task list.
func (s *TaskService) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// FindTask returns the cached task with the given id, or nil.
func (s *TaskService) FindTask(taskID string) *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, task := range s.tasks {
		if task.ID == taskID {
			found := task
			return &found
		}
	}
	return nil
}

// VisibleTasks returns cached tasks excluding those whose status name
// reads as done or complete. Tasks with no status always show.
func (s *TaskService) VisibleTasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	done := make(map[string]bool)
	for _, status := range s.statuses {
		if doneStatusPattern.MatchString(status.Name) {
			done[status.ID.String()] = true
		}
	}

	visible := make([]models.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		statusID := task.TaskStatusID.String()
		if statusID == "" {
			statusID = task.StatusID.String()
		}
		if statusID != "" && done[statusID] {
			continue
		}
		visible = append(visible, task)
	}
	return visible
}

func (s *TaskService) Statuses() []models.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TaskStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *TaskService) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

func (s *TaskService) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, len(s.users))
	copy(out, s.users)
	return out
}

// UpsertTask merges a fresher task into the cache. Unknown tasks are
// prepended unless already deleted.
func (s *TaskService) UpsertTask(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			return
		}
	}
	if !task.IsDeleted {
		s.tasks = append([]models.Task{task}, s.tasks...)
	}
}

// Preferences returns the stored selections for the account, zero
// values when none were saved yet.
func (s *TaskService) Preferences(accountKey string) AccountPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[accountKey]
}

// SavePreferences replaces the account's selections.
func (s *TaskService) SavePreferences(accountKey string, prefs AccountPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[accountKey] = prefs
}

// Refresh reloads the task list using the account's current filters.
// searchOverride, when non-nil, replaces and persists the stored search
// text. Filter sources (projects, statuses, users) reload best-effort:
// failures degrade to values derived from the tasks themselves instead
// of failing the refresh.
func (s *TaskService) Refresh(session *models.AuthSession, searchOverride *string) error {
	prefs := s.Preferences(session.AccountKey)
	search := prefs.LastSearchText
	if searchOverride != nil {
		search = *searchOverride
		prefs.LastSearchText = search
		s.SavePreferences(session.AccountKey, prefs)
	}

	list, err := s.api.ListTasks(session.BaseURL, session, models.TaskQuery{
		Search:    search,
		StatusID:  ToAPIFilterValue(prefs.SelectedStatusID),
		ProjectID: ToAPIFilterValue(prefs.SelectedProjectID),
	})
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(list))
	for _, task := range list {
		if !task.IsDeleted {
			tasks = append(tasks, task)
		}
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()

	s.loadFilterSources(session)
	return nil
}

// Create adds a task scoped to the account's selected project and
// status, falling back to configured defaults.
func (s *TaskService) Create(session *models.AuthSession, description string) (*models.Task, error) {
	prefs := s.Preferences(session.AccountKey)

	projectID := ToAPIFilterValue(prefs.SelectedProjectID)
	if projectID == "" {
		projectID = s.defaultProjectID
	}

	created, err := s.api.CreateTask(session.BaseURL, session, client.CreateTaskRequest{
		Description: description,
		ClientID:    s.defaultClientID,
		ProjectID:   projectID,
		StatusID:    ToAPIFilterValue(prefs.SelectedStatusID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.mu.Lock()
	kept := make([]models.Task, 0, len(s.tasks)+1)
	kept = append(kept, *created)
	for _, task := range s.tasks {
		if task.ID != created.ID {
			kept = append(kept, task)
		}
	}
	s.tasks = kept
	s.mu.Unlock()

	return created, nil
}

// Update applies a merge patch and refreshes the cached copy.
func (s *TaskService) Update(session *models.AuthSession, taskID string, patch models.TaskPatch) (*models.Task, error) {
	updated, err := s.api.UpdateTask(session.BaseURL, session, taskID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i] = *updated
			break
		}
	}
	s.mu.Unlock()

	return updated, nil
}

// Delete removes the task remotely and from the cache. Installs that
// reject the plain delete endpoint get the bulk action as a fallback.
func (s *TaskService) Delete(session *models.AuthSession, taskID string) error {
	if err := s.api.DeleteTask(session.BaseURL, session, taskID); err != nil {
		if bulkErr := s.api.BulkTaskAction(session.BaseURL, session, "delete", []string{taskID}); bulkErr != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
	}

	s.removeCached(taskID)
	return nil
}

// Archive archives the task via the bulk action, falling back to a
// direct archived_at patch.
func (s *TaskService) Archive(session *models.AuthSession, taskID string) error {
	if err := s.api.BulkTaskAction(session.BaseURL, session, "archive", []string{taskID}); err != nil {
		archivedAt := time.Now().Unix()
		if _, patchErr := s.api.UpdateTask(session.BaseURL, session, taskID, models.TaskPatch{ArchivedAt: &archivedAt}); patchErr != nil {
			return fmt.Errorf("failed to archive task: %w", err)
		}
	}

	s.removeCached(taskID)
	return nil
}

// ClearAccountState drops all cached data and the account's saved
// selections. Called on logout.
func (s *TaskService) ClearAccountState(accountKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.statuses = nil
	s.projects = nil
	s.users = nil
	delete(s.prefs, accountKey)
}

func (s *TaskService) removeCached(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	for _, task := range s.tasks {
		if task.ID != taskID {
			kept = append(kept, task)
		}
	}
	s.tasks = kept
}

// loadFilterSources refreshes projects, statuses and users. These are
// background reconciliation; every failure is absorbed and replaced
// with what can be derived from the cached tasks.
func (s *TaskService) loadFilterSources(session *models.AuthSession) {
	projects, err := s.api.ListProjects(session.BaseURL, session)
	if err != nil {
		s.logger.Debug("Falling back to derived projects", zap.Error(err))
		projects = s.deriveProjects()
	}

	statuses, err := s.api.ListTaskStatuses(session.BaseURL, session)
	if err != nil {
		s.logger.Debug("Falling back to derived statuses", zap.Error(err))
		statuses = s.deriveStatuses()
	}

	users, err := s.api.ListUsers(session.BaseURL, session)
	if err != nil {
		s.logger.Debug("User list unavailable", zap.Error(err))
		users = nil
	}

	s.mu.Lock()
	s.projects = projects
	s.statuses = statuses
	s.users = users
	s.mu.Unlock()
}

func (s *TaskService) deriveProjects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var projects []models.Project
	for _, task := range s.tasks {
		if task.ProjectID == "" || seen[task.ProjectID] {
			continue
		}
		seen[task.ProjectID] = true
		projects = append(projects, models.Project{ID: task.ProjectID, Name: task.ProjectID})
	}
	return projects
}

func (s *TaskService) deriveStatuses() []models.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var statuses []models.TaskStatus
	for _, task := range s.tasks {
		id := task.TaskStatusID.String()
		if id == "" {
			id = task.StatusID.String()
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		statuses = append(statuses, models.TaskStatus{ID: json.Number(id), Name: id})
	}
	return statuses
}
