// Package reminder schedules one-shot wall-clock task reminders. Each
// reminder is persisted so it survives restarts, armed with a
// time.AfterFunc, and removed from storage before the user is notified
// so a crash mid-notification cannot re-fire it.
package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// SnoozeMinutes is the fixed snooze interval.
const SnoozeMinutes = 5

// ErrUnsupportedDuration is returned for reminder values that match
// neither a preset phrase nor the <amount><unit> pattern.
var ErrUnsupportedDuration = errors.New("unsupported reminder value")

var durationPattern = regexp.MustCompile(`^(\d+)\s*(m|min|mins|minute|minutes|h|hour|hours)$`)

// Action is the user's resolution of a fired reminder.
type Action int

const (
	ActionDismiss Action = iota
	ActionOpen
	ActionSnooze
)

// Store persists pending reminders.
type Store interface {
	List() ([]models.TaskReminder, error)
	Get(id string) (*models.TaskReminder, error)
	Add(reminder models.TaskReminder) error
	Remove(id string) error
	RemoveByTask(accountKey, taskID string) ([]string, error)
}

// Notifier presents a fired reminder to the user and blocks until an
// action is chosen. Implementations are expected to time out on their
// own and report a dismiss.
type Notifier interface {
	Notify(reminder models.TaskReminder) Action
}

// Scheduler arms a timer per pending reminder and resolves the chosen
// action when one fires. onOpen is invoked for ActionOpen so the caller
// can surface the task; it may be nil.
type Scheduler struct {
	store    Store
	notifier Notifier
	onOpen   func(reminder models.TaskReminder)
	logger   *zap.Logger

	now func() int64

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(store Store, notifier Notifier, onOpen func(reminder models.TaskReminder), logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		onOpen:   onOpen,
		logger:   logger,
		now:      func() int64 { return time.Now().Unix() },
		timers:   make(map[string]*time.Timer),
	}
}

// ResolveMinutes maps a natural-language reminder duration to minutes.
// Preset phrases and a free-form "<amount><unit>" pattern are accepted;
// anything else is rejected.
func ResolveMinutes(value string) (int, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "5 minutes":
		return 5, nil
	case "30 minutes":
		return 30, nil
	case "2 hours":
		return 120, nil
	case "24 hours":
		return 1440, nil
	}

	match := durationPattern.FindStringSubmatch(normalized)
	if match == nil {
		return 0, ErrUnsupportedDuration
	}

	amount, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, ErrUnsupportedDuration
	}
	if strings.HasPrefix(match[2], "h") {
		return amount * 60, nil
	}
	return amount, nil
}

// Create parses a natural-language duration and arms a new reminder.
func (s *Scheduler) Create(accountKey, taskID, taskLabel, value string) (*models.TaskReminder, error) {
	minutes, err := ResolveMinutes(value)
	if err != nil {
		return nil, err
	}
	return s.CreateWithMinutes(accountKey, taskID, taskLabel, minutes)
}

// CreateWithMinutes arms a new reminder due the given number of minutes
// from now. This is the path for user-entered custom minute counts.
func (s *Scheduler) CreateWithMinutes(accountKey, taskID, taskLabel string, minutes int) (*models.TaskReminder, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("reminder must be greater than 0 minutes")
	}

	now := s.now()
	reminder := models.TaskReminder{
		ID:            "rem-" + uuid.NewString(),
		AccountKey:    accountKey,
		TaskID:        taskID,
		TaskLabel:     strings.TrimSpace(taskLabel),
		DueAtUnix:     now + int64(minutes)*60,
		CreatedAtUnix: now,
	}
	if reminder.TaskLabel == "" {
		reminder.TaskLabel = "Task"
	}

	if err := s.store.Add(reminder); err != nil {
		return nil, fmt.Errorf("failed to persist reminder: %w", err)
	}
	s.schedule(reminder)

	s.logger.Info("Reminder created",
		zap.String("reminder_id", reminder.ID),
		zap.String("task_id", taskID),
		zap.Int64("due_at", reminder.DueAtUnix))
	return &reminder, nil
}

// Restore re-arms every persisted reminder against its original due
// time. Past-due reminders fire immediately with zero delay.
func (s *Scheduler) Restore() error {
	reminders, err := s.store.List()
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}

	for _, reminder := range reminders {
		s.schedule(reminder)
	}
	if len(reminders) > 0 {
		s.logger.Info("Reminders restored", zap.Int("count", len(reminders)))
	}
	return nil
}

// CancelForTask disarms and removes every reminder bound to the task.
// Called when the task is deleted.
func (s *Scheduler) CancelForTask(accountKey, taskID string) error {
	ids, err := s.store.RemoveByTask(accountKey, taskID)
	if err != nil {
		return fmt.Errorf("failed to remove task reminders: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		if timer, ok := s.timers[id]; ok {
			timer.Stop()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// Stop disarms all pending timers. Persisted reminders are untouched
// and will be restored on the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) schedule(reminder models.TaskReminder) {
	delay := time.Duration(reminder.DueAtUnix*1000-s.now()*1000) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if existing, ok := s.timers[reminder.ID]; ok {
		existing.Stop()
	}
	id := reminder.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
	s.mu.Unlock()
}

// fire resolves a due reminder. The persisted record is removed before
// the notifier runs: a crash during notification must not re-fire the
// reminder on restart.
func (s *Scheduler) fire(id string) {
	reminder, err := s.store.Get(id)
	if err != nil {
		s.logger.Error("Failed to load fired reminder", zap.String("reminder_id", id), zap.Error(err))
		return
	}
	if reminder == nil {
		return
	}

	if err := s.store.Remove(id); err != nil {
		s.logger.Error("Failed to remove fired reminder", zap.String("reminder_id", id), zap.Error(err))
		return
	}

	switch s.notifier.Notify(*reminder) {
	case ActionOpen:
		if s.onOpen != nil {
			s.onOpen(*reminder)
		}
	case ActionSnooze:
		if _, err := s.CreateWithMinutes(reminder.AccountKey, reminder.TaskID, reminder.TaskLabel, SnoozeMinutes); err != nil {
			s.logger.Error("Failed to snooze reminder", zap.String("reminder_id", id), zap.Error(err))
		}
	case ActionDismiss:
	}
}
