package reminder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

type memoryStore struct {
	mu        sync.Mutex
	reminders []models.TaskReminder
}

func (m *memoryStore) List() ([]models.TaskReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TaskReminder, len(m.reminders))
	copy(out, m.reminders)
	return out, nil
}

func (m *memoryStore) Get(id string) (*models.TaskReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reminder := range m.reminders {
		if reminder.ID == id {
			found := reminder
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) Add(reminder models.TaskReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, reminder)
	return nil
}

func (m *memoryStore) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.reminders[:0]
	for _, reminder := range m.reminders {
		if reminder.ID != id {
			kept = append(kept, reminder)
		}
	}
	m.reminders = kept
	return nil
}

func (m *memoryStore) RemoveByTask(accountKey, taskID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	kept := m.reminders[:0]
	for _, reminder := range m.reminders {
		if reminder.AccountKey == accountKey && reminder.TaskID == taskID {
			removed = append(removed, reminder.ID)
			continue
		}
		kept = append(kept, reminder)
	}
	m.reminders = kept
	return removed, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}

// notifierFunc records fired reminders and answers with a fixed action.
type notifierFunc struct {
	action Action
	fired  chan models.TaskReminder
	// pendingAtFire captures the store size observed while notifying,
	// to verify removal happens before notification.
	store         *memoryStore
	pendingAtFire chan int
}

func (n *notifierFunc) Notify(reminder models.TaskReminder) Action {
	if n.pendingAtFire != nil {
		n.pendingAtFire <- n.store.count()
	}
	n.fired <- reminder
	return n.action
}

func TestResolveMinutes(t *testing.T) {
	tests := []struct {
		value    string
		expected int
		wantErr  bool
	}{
		{value: "5 minutes", expected: 5},
		{value: "30 minutes", expected: 30},
		{value: "2 hours", expected: 120},
		{value: "24 hours", expected: 1440},
		{value: "  5 Minutes ", expected: 5},
		{value: "45m", expected: 45},
		{value: "45 min", expected: 45},
		{value: "10 mins", expected: 10},
		{value: "1 minute", expected: 1},
		{value: "90 minutes", expected: 90},
		{value: "3h", expected: 180},
		{value: "1 hour", expected: 60},
		{value: "12 hours", expected: 720},
		{value: "tomorrow", wantErr: true},
		{value: "5.5 hours", wantErr: true},
		{value: "-5m", wantErr: true},
		{value: "h", wantErr: true},
		{value: "", wantErr: true},
		{value: "custom", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			minutes, err := ResolveMinutes(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, minutes)
		})
	}
}

func TestCreate_PersistsAndSetsDueTime(t *testing.T) {
	store := &memoryStore{}
	scheduler := NewScheduler(store, &notifierFunc{fired: make(chan models.TaskReminder, 1)}, nil, zap.NewNop())
	scheduler.now = func() int64 { return 1000 }
	defer scheduler.Stop()

	reminder, err := scheduler.Create("acct", "t1", "Fix login", "30 minutes")
	require.NoError(t, err)

	assert.Equal(t, int64(1000+30*60), reminder.DueAtUnix)
	assert.Equal(t, int64(1000), reminder.CreatedAtUnix)
	assert.Equal(t, "Fix login", reminder.TaskLabel)
	assert.NotEmpty(t, reminder.ID)
	assert.Equal(t, 1, store.count())
}

func TestCreateWithMinutes_RejectsNonPositive(t *testing.T) {
	store := &memoryStore{}
	scheduler := NewScheduler(store, &notifierFunc{fired: make(chan models.TaskReminder, 1)}, nil, zap.NewNop())
	defer scheduler.Stop()

	_, err := scheduler.CreateWithMinutes("acct", "t1", "Task", 0)
	require.Error(t, err)
	assert.Equal(t, 0, store.count())
}

func TestFire_RemovesFromStoreBeforeNotifying(t *testing.T) {
	store := &memoryStore{}
	notifier := &notifierFunc{
		action:        ActionDismiss,
		fired:         make(chan models.TaskReminder, 1),
		store:         store,
		pendingAtFire: make(chan int, 1),
	}
	scheduler := NewScheduler(store, notifier, nil, zap.NewNop())
	defer scheduler.Stop()

	require.NoError(t, store.Add(models.TaskReminder{ID: "rem-1", AccountKey: "acct", TaskID: "t1", DueAtUnix: 1}))
	require.NoError(t, scheduler.Restore())

	select {
	case pending := <-notifier.pendingAtFire:
		assert.Equal(t, 0, pending)
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}
	<-notifier.fired
}

func TestFire_SnoozeCreatesNewReminder(t *testing.T) {
	store := &memoryStore{}
	notifier := &notifierFunc{action: ActionSnooze, fired: make(chan models.TaskReminder, 1)}
	scheduler := NewScheduler(store, notifier, nil, zap.NewNop())
	defer scheduler.Stop()

	require.NoError(t, store.Add(models.TaskReminder{ID: "rem-1", AccountKey: "acct", TaskID: "t1", TaskLabel: "Fix login", DueAtUnix: 1}))
	require.NoError(t, scheduler.Restore())

	select {
	case <-notifier.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}

	require.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	reminders, err := store.List()
	require.NoError(t, err)
	snoozed := reminders[0]
	assert.NotEqual(t, "rem-1", snoozed.ID)
	assert.Equal(t, "t1", snoozed.TaskID)
	assert.Equal(t, "Fix login", snoozed.TaskLabel)
	assert.InDelta(t, time.Now().Unix()+SnoozeMinutes*60, snoozed.DueAtUnix, 5)
}

func TestFire_OpenInvokesCallback(t *testing.T) {
	store := &memoryStore{}
	notifier := &notifierFunc{action: ActionOpen, fired: make(chan models.TaskReminder, 1)}
	opened := make(chan models.TaskReminder, 1)
	scheduler := NewScheduler(store, notifier, func(reminder models.TaskReminder) {
		opened <- reminder
	}, zap.NewNop())
	defer scheduler.Stop()

	require.NoError(t, store.Add(models.TaskReminder{ID: "rem-1", TaskID: "t1", DueAtUnix: 1}))
	require.NoError(t, scheduler.Restore())

	<-notifier.fired
	select {
	case reminder := <-opened:
		assert.Equal(t, "t1", reminder.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("open callback never invoked")
	}
}

func TestCancelForTask_DisarmsAndRemoves(t *testing.T) {
	store := &memoryStore{}
	notifier := &notifierFunc{action: ActionDismiss, fired: make(chan models.TaskReminder, 1)}
	scheduler := NewScheduler(store, notifier, nil, zap.NewNop())
	scheduler.now = func() int64 { return time.Now().Unix() }
	defer scheduler.Stop()

	reminder, err := scheduler.Create("acct", "t1", "Task", "24 hours")
	require.NoError(t, err)
	_, err = scheduler.Create("acct", "t2", "Other", "24 hours")
	require.NoError(t, err)

	require.NoError(t, scheduler.CancelForTask("acct", "t1"))

	reminders, err := store.List()
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "t2", reminders[0].TaskID)

	scheduler.mu.Lock()
	_, stillArmed := scheduler.timers[reminder.ID]
	scheduler.mu.Unlock()
	assert.False(t, stillArmed)
}

func TestRestore_SchedulesEveryPendingReminder(t *testing.T) {
	store := &memoryStore{}
	notifier := &notifierFunc{action: ActionDismiss, fired: make(chan models.TaskReminder, 2)}
	scheduler := NewScheduler(store, notifier, nil, zap.NewNop())
	defer scheduler.Stop()

	require.NoError(t, store.Add(models.TaskReminder{ID: "rem-1", TaskID: "t1", DueAtUnix: 1}))
	require.NoError(t, store.Add(models.TaskReminder{ID: "rem-2", TaskID: "t2", DueAtUnix: 2}))
	require.NoError(t, scheduler.Restore())

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case reminder := <-notifier.fired:
			seen[reminder.TaskID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("expected both reminders to fire")
		}
	}
	assert.True(t, seen["t1"])
	assert.True(t, seen["t2"])
	assert.Equal(t, 0, store.count())
}
