package timer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/worklog"
)

type fakeTaskStore struct {
	task      models.Task
	getErr    error
	updateErr error

	updates []models.TaskPatch
}

func (f *fakeTaskStore) GetTask(baseURL string, session *models.AuthSession, taskID string) (*models.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	task := f.task
	return &task, nil
}

func (f *fakeTaskStore) UpdateTask(baseURL string, session *models.AuthSession, taskID string, patch models.TaskPatch) (*models.Task, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, patch)
	if patch.Description != nil {
		f.task.Description = *patch.Description
	}
	if patch.TimeLog != nil {
		f.task.TimeLog = *patch.TimeLog
	}
	if patch.IsRunning != nil {
		f.task.IsRunning = *patch.IsRunning
	}
	task := f.task
	return &task, nil
}

type fakeTimerStore struct {
	active  *models.ActiveTimerSession
	saveErr error
	saves   int

	// onGet, when set, runs before each read. Lets tests interleave a
	// concurrent start/stop with an in-flight workspace update.
	onGet func()
}

func (f *fakeTimerStore) GetActiveTimer() (*models.ActiveTimerSession, error) {
	if f.onGet != nil {
		f.onGet()
	}
	if f.active == nil {
		return nil, nil
	}
	active := *f.active
	return &active, nil
}

func (f *fakeTimerStore) SaveActiveTimer(timer *models.ActiveTimerSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *timer
	f.active = &copied
	f.saves++
	return nil
}

func (f *fakeTimerStore) ClearActiveTimer() error {
	f.active = nil
	return nil
}

func testSession() *models.AuthSession {
	return &models.AuthSession{
		AccountKey: "https://ninja.test|dev@example.com",
		BaseURL:    "https://ninja.test",
		Email:      "dev@example.com",
	}
}

func newTestService(tasks *fakeTaskStore, store *fakeTimerStore, worklogEnabled bool, workspace string, now int64) *Service {
	svc := NewService(tasks, store, func() string { return workspace }, worklogEnabled, worklog.DefaultRetentionDays, zap.NewNop())
	svc.now = func() int64 { return now }
	return svc
}

func TestStartTimer_AppendsOpenSegment(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", Description: "Fix login", TimeLog: `[[100,200]]`}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 1000)

	active, err := svc.StartTimer(testSession(), &models.Task{ID: "t1", Description: "Fix login"})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), active.StartedAtUnix)
	assert.Equal(t, "t1", active.TaskID)
	assert.Equal(t, "Fix login", active.TaskLabel)

	require.Len(t, tasks.updates, 1)
	patch := tasks.updates[0]
	require.NotNil(t, patch.TimeLog)
	assert.Equal(t, `[[100,200],[1000,0]]`, *patch.TimeLog)
	require.NotNil(t, patch.IsRunning)
	assert.True(t, *patch.IsRunning)

	require.NotNil(t, store.active)
	assert.Equal(t, active.TaskID, store.active.TaskID)
}

func TestStartTimer_ReusesOpenSegment(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", TimeLog: `[[100,200],[700,0]]`}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 1000)

	active, err := svc.StartTimer(testSession(), &models.Task{ID: "t1"})
	require.NoError(t, err)

	// Elapsed display must reflect the true segment start, not call time.
	assert.Equal(t, int64(700), active.StartedAtUnix)

	require.Len(t, tasks.updates, 1)
	assert.Equal(t, `[[100,200],[700,0]]`, *tasks.updates[0].TimeLog)
}

func TestStartTimer_MalformedTimeLogDegradesToEmpty(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", TimeLog: `{"not":"an array"}`}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 1000)

	_, err := svc.StartTimer(testSession(), &models.Task{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, `[[1000,0]]`, *tasks.updates[0].TimeLog)
}

func TestStartTimer_WritesServerDescriptionAsFetched(t *testing.T) {
	// The remote store is the system of record: a description another
	// client cleared must not be resurrected from the cached task.
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", Description: ""}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 1000)

	_, err := svc.StartTimer(testSession(), &models.Task{ID: "t1", Description: "stale cached text"})
	require.NoError(t, err)

	require.Len(t, tasks.updates, 1)
	require.NotNil(t, tasks.updates[0].Description)
	assert.Empty(t, *tasks.updates[0].Description)
}

func TestStartTimer_RemoteFailureLeavesNoLocalState(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1"}, updateErr: errors.New("boom")}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 1000)

	_, err := svc.StartTimer(testSession(), &models.Task{ID: "t1"})
	require.Error(t, err)
	assert.Nil(t, store.active)
}

func TestStartTimer_WorklogEnabledInitializesTracking(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1"}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, true, "repo-a", 1000)

	active, err := svc.StartTimer(testSession(), &models.Task{ID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, "repo-a", active.WorklogCurrentWorkspace)
	assert.Equal(t, int64(1000), active.WorklogSegmentStartedAtUnix)
	assert.NotNil(t, active.WorklogDailyWorkspaceSeconds)
}

func TestStopTimer_ClosesFirstOpenSegment(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", TimeLog: `[[100,200],[700,0]]`}}
	store := &fakeTimerStore{active: &models.ActiveTimerSession{TaskID: "t1", StartedAtUnix: 700}}
	svc := newTestService(tasks, store, false, "", 900)

	_, err := svc.StopTimer(testSession(), "t1")
	require.NoError(t, err)

	require.Len(t, tasks.updates, 1)
	assert.Equal(t, `[[100,200],[700,900]]`, *tasks.updates[0].TimeLog)
	assert.False(t, *tasks.updates[0].IsRunning)
	assert.Nil(t, store.active)
}

func TestStopTimer_WithoutOpenSegmentAppendsDegenerate(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", TimeLog: `[[100,200]]`}}
	store := &fakeTimerStore{}
	svc := newTestService(tasks, store, false, "", 900)

	_, err := svc.StopTimer(testSession(), "t1")
	require.NoError(t, err)
	assert.Equal(t, `[[100,200],[900,900]]`, *tasks.updates[0].TimeLog)
}

func TestStopTimer_MergesWorklogForMatchingSession(t *testing.T) {
	now := int64(1_760_000_000)
	session := testSession()
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", Description: "Client work", TimeLog: `[[100,0]]`}}
	store := &fakeTimerStore{active: &models.ActiveTimerSession{
		AccountKey:                  session.AccountKey,
		BaseURL:                     session.BaseURL,
		TaskID:                      "t1",
		StartedAtUnix:               now - 600,
		WorklogCurrentWorkspace:     "repo-a",
		WorklogSegmentStartedAtUnix: now - 600,
		WorklogDailyWorkspaceSeconds: map[string]int64{
			worklog.MapKey(worklog.LocalDateKey(now), "repo-b"): 120,
		},
	}}
	svc := newTestService(tasks, store, true, "repo-a", now)

	_, err := svc.StopTimer(session, "t1")
	require.NoError(t, err)

	description := *tasks.updates[0].Description
	assert.Contains(t, description, worklog.SectionStart)
	assert.Contains(t, description, "| repo-a | 600s")
	assert.Contains(t, description, "| repo-b | 120s")
	assert.True(t, strings.HasPrefix(description, "Client work"))
}

func TestStopTimer_SkipsWorklogForForeignTimer(t *testing.T) {
	now := int64(1_760_000_000)
	tasks := &fakeTaskStore{task: models.Task{ID: "t1", Description: "Client work", TimeLog: `[[100,0]]`}}
	store := &fakeTimerStore{active: &models.ActiveTimerSession{
		AccountKey:                  "https://other.test|someone@else.com",
		BaseURL:                     "https://other.test",
		TaskID:                      "t1",
		StartedAtUnix:               now - 600,
		WorklogCurrentWorkspace:     "repo-a",
		WorklogSegmentStartedAtUnix: now - 600,
	}}
	svc := newTestService(tasks, store, true, "repo-a", now)

	_, err := svc.StopTimer(testSession(), "t1")
	require.NoError(t, err)

	assert.Equal(t, "Client work", *tasks.updates[0].Description)
}

func TestStopTimer_RemoteFailureKeepsLocalState(t *testing.T) {
	tasks := &fakeTaskStore{task: models.Task{ID: "t1"}, updateErr: errors.New("boom")}
	store := &fakeTimerStore{active: &models.ActiveTimerSession{TaskID: "t1"}}
	svc := newTestService(tasks, store, false, "", 900)

	_, err := svc.StopTimer(testSession(), "t1")
	require.Error(t, err)
	assert.NotNil(t, store.active)
}

func TestHandleWorkspaceChange_RotatesSegment(t *testing.T) {
	now := int64(1_760_000_000)
	store := &fakeTimerStore{active: &models.ActiveTimerSession{
		TaskID:                      "t1",
		StartedAtUnix:               now - 300,
		WorklogCurrentWorkspace:     "repo-a",
		WorklogSegmentStartedAtUnix: now - 300,
	}}
	svc := newTestService(&fakeTaskStore{}, store, true, "repo-a", now)

	require.NoError(t, svc.HandleWorkspaceChange("repo-b"))

	require.NotNil(t, store.active)
	assert.Equal(t, "repo-b", store.active.WorklogCurrentWorkspace)
	assert.Equal(t, now, store.active.WorklogSegmentStartedAtUnix)

	key := worklog.MapKey(worklog.LocalDateKey(now-300), "repo-a")
	assert.Equal(t, int64(300), store.active.WorklogDailyWorkspaceSeconds[key])
}

func TestHandleWorkspaceChange_SameWorkspaceIsNoop(t *testing.T) {
	now := int64(1_760_000_000)
	store := &fakeTimerStore{active: &models.ActiveTimerSession{
		TaskID:                      "t1",
		WorklogCurrentWorkspace:     "repo-a",
		WorklogSegmentStartedAtUnix: now - 300,
	}}
	svc := newTestService(&fakeTaskStore{}, store, true, "repo-a", now)

	require.NoError(t, svc.HandleWorkspaceChange("repo-a"))
	assert.Equal(t, 0, store.saves)
}

func TestHandleWorkspaceChange_StartsSegmentSilently(t *testing.T) {
	now := int64(1_760_000_000)
	store := &fakeTimerStore{active: &models.ActiveTimerSession{TaskID: "t1", StartedAtUnix: now - 50}}
	svc := newTestService(&fakeTaskStore{}, store, true, "", now)

	require.NoError(t, svc.HandleWorkspaceChange("repo-a"))

	assert.Equal(t, "repo-a", store.active.WorklogCurrentWorkspace)
	assert.Equal(t, now, store.active.WorklogSegmentStartedAtUnix)
	assert.Empty(t, store.active.WorklogDailyWorkspaceSeconds)
}

func TestHandleWorkspaceChange_DiscardedWhenVersionAdvances(t *testing.T) {
	now := int64(1_760_000_000)
	store := &fakeTimerStore{active: &models.ActiveTimerSession{
		TaskID:                      "t1",
		WorklogCurrentWorkspace:     "repo-a",
		WorklogSegmentStartedAtUnix: now - 300,
	}}
	svc := newTestService(&fakeTaskStore{}, store, true, "repo-a", now)
	before := *store.active

	// A stop/start commits while this update is reading the record,
	// advancing the version past the one the update will observe.
	store.onGet = func() { svc.version.Add(1) }

	require.NoError(t, svc.HandleWorkspaceChange("repo-b"))
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, before, *store.active)
}

func TestHandleWorkspaceChange_DisabledWorklogIsNoop(t *testing.T) {
	store := &fakeTimerStore{active: &models.ActiveTimerSession{TaskID: "t1"}}
	svc := newTestService(&fakeTaskStore{}, store, false, "repo-a", 1000)

	require.NoError(t, svc.HandleWorkspaceChange("repo-b"))
	assert.Equal(t, 0, store.saves)
}

func TestElapsedSeconds(t *testing.T) {
	svc := newTestService(&fakeTaskStore{}, &fakeTimerStore{}, false, "", 1000)

	assert.Equal(t, int64(0), svc.ElapsedSeconds(nil))
	assert.Equal(t, int64(400), svc.ElapsedSeconds(&models.ActiveTimerSession{StartedAtUnix: 600}))
	assert.Equal(t, int64(0), svc.ElapsedSeconds(&models.ActiveTimerSession{StartedAtUnix: 2000}))
}

func TestClearActiveTimer(t *testing.T) {
	store := &fakeTimerStore{active: &models.ActiveTimerSession{TaskID: "t1"}}
	svc := newTestService(&fakeTaskStore{}, store, false, "", 1000)

	require.NoError(t, svc.ClearActiveTimer())
	assert.Nil(t, store.active)
	assert.Equal(t, int64(1), svc.version.Load())
}
