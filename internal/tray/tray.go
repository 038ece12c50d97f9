// Package tray provides a system tray interface for controlling the edgecam
// pipeline: start/stop the camera and toggle detection.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onPipeline  func(running bool)
	onDetection func(enabled bool)
	onQuit      func()
	running     bool
	detection   bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuPipeline  *systray.MenuItem
	menuDetection *systray.MenuItem
	menuState     *systray.MenuItem
}

// New creates a new Tray instance. The pipeline starts stopped and
// detection starts off.
func New() *Tray {
	return &Tray{}
}

// OnPipeline sets the callback invoked when the start/stop item is clicked.
func (t *Tray) OnPipeline(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPipeline = fn
}

// OnDetection sets the callback invoked when the detection item is clicked.
func (t *Tray) OnDetection(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDetection = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the tray down.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("edgecam")
	systray.SetTooltip("edgecam camera pipeline")

	t.menuState = systray.AddMenuItem("State: idle", "Pipeline state")
	t.menuState.Disable()
	systray.AddSeparator()

	t.menuPipeline = systray.AddMenuItem("Start Camera", "Start or stop the camera pipeline")
	t.menuDetection = systray.AddMenuItem("Enable Detection", "Toggle object detection")
	t.menuDetection.Disable()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit edgecam")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuPipeline.ClickedCh:
				t.handlePipeline()
			case <-t.menuDetection.ClickedCh:
				t.handleDetection()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
}

// handlePipeline handles the start/stop menu item click.
func (t *Tray) handlePipeline() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running
	t.applyStateLocked()
	callback := t.onPipeline
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(running)
	}
}

// handleDetection handles the detection toggle click.
func (t *Tray) handleDetection() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.detection = !t.detection
	enabled := t.detection
	t.applyStateLocked()
	callback := t.onDetection
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
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

	systray.Quit()
}

// SetRunning reflects an external pipeline state change in the menu, for
// example an automatic stop after a camera error.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = running
	if !running {
		t.detection = false
	}
	t.applyStateLocked()
}

// SetDetection reflects an external detection mode change in the menu.
func (t *Tray) SetDetection(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detection = enabled
	t.applyStateLocked()
}

// applyStateLocked syncs menu titles with the current state. Caller holds mu.
func (t *Tray) applyStateLocked() {
	if t.menuPipeline == nil {
		return
	}

	if t.running {
		t.menuState.SetTitle("State: running")
		t.menuPipeline.SetTitle("Stop Camera")
		t.menuDetection.Enable()
	} else {
		t.menuState.SetTitle("State: idle")
		t.menuPipeline.SetTitle("Start Camera")
		t.menuDetection.Disable()
	}

	if t.detection {
		t.menuDetection.SetTitle("Disable Detection")
	} else {
		t.menuDetection.SetTitle("Enable Detection")
	}
}

// IsRunning returns the tray's view of the pipeline state.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
