package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/reminder"
)

func TestNotificationHub_RespondResolvesNotify(t *testing.T) {
	hub := NewNotificationHub(5*time.Second, zap.NewNop())
	defer hub.Stop()

	result := make(chan reminder.Action, 1)
	go func() {
		result <- hub.Notify(models.TaskReminder{TaskID: "t1", TaskLabel: "Fix login"})
	}()

	var pending []Notification
	require.Eventually(t, func() bool {
		pending = hub.Pending()
		return len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "t1", pending[0].TaskID)
	assert.Equal(t, "Fix login", pending[0].Label)
	assert.Equal(t, []string{"open", "snooze", "dismiss"}, pending[0].Actions)

	require.NoError(t, hub.Respond(pending[0].ID, "snooze"))

	select {
	case action := <-result:
		assert.Equal(t, reminder.ActionSnooze, action)
	case <-time.After(2 * time.Second):
		t.Fatal("notify never returned")
	}

	assert.Empty(t, hub.Pending())
}

func TestNotificationHub_TimeoutDismisses(t *testing.T) {
	hub := NewNotificationHub(50*time.Millisecond, zap.NewNop())
	defer hub.Stop()

	action := hub.Notify(models.TaskReminder{TaskID: "t1"})
	assert.Equal(t, reminder.ActionDismiss, action)
	assert.Empty(t, hub.Pending())
}

func TestNotificationHub_RespondUnknownID(t *testing.T) {
	hub := NewNotificationHub(time.Second, zap.NewNop())
	defer hub.Stop()

	assert.Error(t, hub.Respond("missing", "dismiss"))
}

func TestNotificationHub_RespondRejectsUnknownAction(t *testing.T) {
	hub := NewNotificationHub(time.Second, zap.NewNop())
	defer hub.Stop()

	assert.Error(t, hub.Respond("any", "explode"))
}

func TestNotificationHub_StopReleasesWaiters(t *testing.T) {
	hub := NewNotificationHub(time.Minute, zap.NewNop())

	result := make(chan reminder.Action, 1)
	go func() {
		result <- hub.Notify(models.TaskReminder{TaskID: "t1"})
	}()

	require.Eventually(t, func() bool { return len(hub.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Stop()

	select {
	case action := <-result:
		assert.Equal(t, reminder.ActionDismiss, action)
	case <-time.After(2 * time.Second):
		t.Fatal("notify never released")
	}
}
