// Package tray provides a system tray menu for pausing and quitting mouthosc.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

const (
	titleRunning = "● Sending"
	titlePaused  = "○ Paused"
)

// Tray represents the system tray application.
type Tray struct {
	target  string
	onPause func(paused bool)
	onQuit  func()
	quit    func()
	paused  bool
	ready   bool
	stopped bool
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray for the given OSC target, initially sending.
func New(target string) *Tray {
	return &Tray{
		target: target,
		quit:   systray.Quit,
	}
}

// OnPause sets the callback invoked when emission is paused or resumed.
func (t *Tray) OnPause(fn func(paused bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPause = fn
}

// OnQuit sets the callback invoked when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Stop is called or Quit is clicked.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Stop ends the tray loop. It may be called before Run has brought the tray up;
// the loop then exits as soon as it is ready.
func (t *Tray) Stop() {
	t.mu.Lock()
	t.stopped = true
	ready := t.ready
	t.mu.Unlock()

	if ready {
		t.quit()
	}
}

// markReady records that the native loop is running and reports whether
// Stop was already requested.
func (t *Tray) markReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = true
	return t.stopped
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	if t.markReady() {
		t.quit()
		return
	}

	systray.SetTitle("mouthosc")
	systray.SetTooltip("Mouth gestures to OSC on " + t.target)

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.paused), "Pause or resume sending")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem("Waiting for face", "Last emitted values")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit mouthosc")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(paused bool) string {
	if paused {
		return titlePaused
	}
	return titleRunning
}

// handleToggle flips the paused state.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.paused = !t.paused
	paused := t.paused

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(paused))
	}

	callback := t.onPause
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(paused)
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	t.quit()
}

// SetStatus shows the latest emitted values in the menu.
func (t *Tray) SetStatus(width, height float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(fmt.Sprintf("width %.2f  height %.2f", width, height))
	}
}

// IsPaused returns the current paused state.
func (t *Tray) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}
