package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/reminder"
)

// Notification is a fired reminder waiting for the editor plugin to
// present it and report the chosen action.
type Notification struct {
	ID        string   `json:"id"`
	TaskID    string   `json:"taskId"`
	Label     string   `json:"label"`
	Actions   []string `json:"actions"`
	CreatedAt int64    `json:"createdAt"`
}

type pendingNotification struct {
	notification Notification
	response     chan reminder.Action
}

// NotificationHub bridges the reminder scheduler and the editor plugin.
// Notify blocks the scheduler's firing goroutine until the plugin
// responds via Respond or the response timeout elapses, which counts as
// a dismiss. The plugin discovers pending notifications by polling.
type NotificationHub struct {
	timeout  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]*pendingNotification
}

// NewNotificationHub creates a hub whose notifications auto-dismiss
// after timeout.
func NewNotificationHub(timeout time.Duration, logger *zap.Logger) *NotificationHub {
	return &NotificationHub{
		timeout:  timeout,
		logger:   logger,
		stopChan: make(chan struct{}),
		pending:  make(map[string]*pendingNotification),
	}
}

// Notify queues the reminder for the plugin and waits for a response.
// Implements reminder.Notifier.
func (h *NotificationHub) Notify(rem models.TaskReminder) reminder.Action {
	entry := &pendingNotification{
		notification: Notification{
			ID:        uuid.NewString(),
			TaskID:    rem.TaskID,
			Label:     rem.TaskLabel,
			Actions:   []string{"open", "snooze", "dismiss"},
			CreatedAt: time.Now().Unix(),
		},
		response: make(chan reminder.Action, 1),
	}

	h.mu.Lock()
	h.pending[entry.notification.ID] = entry
	h.mu.Unlock()

	h.logger.Info("Reminder notification queued",
		zap.String("notification_id", entry.notification.ID),
		zap.String("task_id", rem.TaskID))

	defer func() {
		h.mu.Lock()
		delete(h.pending, entry.notification.ID)
		h.mu.Unlock()
	}()

	select {
	case action := <-entry.response:
		return action
	case <-time.After(h.timeout):
		h.logger.Debug("Notification timed out",
			zap.String("notification_id", entry.notification.ID))
		return reminder.ActionDismiss
	case <-h.stopChan:
		return reminder.ActionDismiss
	}
}

// Pending lists queued notifications, oldest first.
func (h *NotificationHub) Pending() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Notification, 0, len(h.pending))
	for _, entry := range h.pending {
		out = append(out, entry.notification)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Respond resolves a pending notification with the plugin's action.
func (h *NotificationHub) Respond(id, action string) error {
	resolved, err := parseAction(action)
	if err != nil {
		return err
	}

	h.mu.Lock()
	entry, ok := h.pending[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown notification: %s", id)
	}

	select {
	case entry.response <- resolved:
		return nil
	default:
		return fmt.Errorf("notification already resolved: %s", id)
	}
}

// Stop releases every blocked Notify call as a dismiss.
func (h *NotificationHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func parseAction(action string) (reminder.Action, error) {
	switch action {
	case "open":
		return reminder.ActionOpen, nil
	case "snooze":
		return reminder.ActionSnooze, nil
	case "dismiss":
		return reminder.ActionDismiss, nil
	default:
		return reminder.ActionDismiss, fmt.Errorf("unsupported notification action: %s", action)
	}
}
