// Package tray shows the timer state in the system tray: the running
// task and its elapsed time, a stop item, and quit.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/service"
)

const idleTitle = "Invoice Ninja: idle"

// Tray drives the systray UI. Run blocks the calling goroutine until
// Quit, as required by the systray event loop.
type Tray struct {
	onStopTimer func()
	onQuit      func()
	logger      *zap.Logger

	mu       sync.Mutex
	ready    bool
	lastLine string
	stopItem *systray.MenuItem
}

func New(onStopTimer, onQuit func(), logger *zap.Logger) *Tray {
	return &Tray{
		onStopTimer: onStopTimer,
		onQuit:      onQuit,
		logger:      logger,
	}
}

// Run enters the systray main loop. Must be called from the process's
// main goroutine on platforms that require it.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit terminates the systray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// Update reflects an agent state snapshot in the tray. Safe to call
// from any goroutine; updates arriving before the tray is ready are
// applied on the next call.
func (t *Tray) Update(state service.State) {
	line := idleTitle
	if state.IsTimerRunning {
		line = state.StatusLine
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready || line == t.lastLine {
		t.lastLine = line
		return
	}
	t.lastLine = line

	systray.SetTitle(line)
	systray.SetTooltip(line)
	if t.stopItem != nil {
		if state.IsTimerRunning {
			t.stopItem.Enable()
		} else {
			t.stopItem.Disable()
		}
	}
}

func (t *Tray) onReady() {
	systray.SetTitle(idleTitle)
	systray.SetTooltip(idleTitle)

	stopItem := systray.AddMenuItem("Stop timer", "Stop the running timer")
	stopItem.Disable()
	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit", "Shut down the agent")

	t.mu.Lock()
	t.ready = true
	t.stopItem = stopItem
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-stopItem.ClickedCh:
				t.logger.Info("Stop timer requested from tray")
				if t.onStopTimer != nil {
					t.onStopTimer()
				}
			case <-quitItem.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.onQuit != nil {
		t.onQuit()
	}
}
