// Package tray provides the system tray menu: an inference checkbox, a
// training launcher and a status line.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray application.
type Tray struct {
	mu        sync.RWMutex
	onInfer   func(on bool)
	onTrain   func()
	onOpen    func()
	onQuit    func()
	inferring bool
	status    string

	menuInfer  *systray.MenuItem
	menuTrain  *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a tray showing the given inference state.
func New(inferring bool) *Tray {
	return &Tray{inferring: inferring}
}

// OnInfer sets the callback for the inference checkbox.
func (t *Tray) OnInfer(fn func(on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onInfer = fn
}

// OnTrain sets the callback for the Train item.
func (t *Tray) OnTrain(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrain = fn
}

// OnOpen sets the callback for the Open Panel item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback for the Quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is called and must run on the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("camscroll")
	systray.SetTooltip("Scroll with hand gestures")

	t.mu.Lock()
	t.menuInfer = systray.AddMenuItemCheckbox("Inference", "Scroll when a gesture is seen", t.inferring)
	t.menuTrain = systray.AddMenuItem("Train", "Record samples for each gesture")
	systray.AddSeparator()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Training status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Panel...", "Open the control panel in a browser")
	menuQuit := systray.AddMenuItem("Quit", "Quit camscroll")

	go func() {
		for {
			select {
			case <-t.menuInfer.ClickedCh:
				t.toggleInfer()
			case <-t.menuTrain.ClickedCh:
				t.call(t.trainCallback())
			case <-menuOpen.ClickedCh:
				t.mu.RLock()
				fn := t.onOpen
				t.mu.RUnlock()
				t.call(fn)
			case <-menuQuit.ClickedCh:
				t.mu.RLock()
				fn := t.onQuit
				t.mu.RUnlock()
				t.call(fn)
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) trainCallback() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onTrain
}

func (t *Tray) call(fn func()) {
	if fn != nil {
		fn()
	}
}

// toggleInfer flips the checkbox and reports the new state.
func (t *Tray) toggleInfer() {
	t.mu.Lock()
	t.inferring = !t.inferring
	on := t.inferring
	t.syncInferLocked()
	callback := t.onInfer
	t.mu.Unlock()

	if callback != nil {
		callback(on)
	}
}

// SetInferring updates the checkbox without invoking the callback.
func (t *Tray) SetInferring(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inferring = on
	t.syncInferLocked()
}

func (t *Tray) syncInferLocked() {
	if t.menuInfer == nil {
		return
	}
	if t.inferring {
		t.menuInfer.Check()
	} else {
		t.menuInfer.Uncheck()
	}
}

// SetStatus shows a training status line. While training, the Train item
// is disabled.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(status))
	}
	if t.menuTrain != nil {
		if status == "" {
			t.menuTrain.Enable()
		} else {
			t.menuTrain.Disable()
		}
	}
}

// Inferring returns the checkbox state.
func (t *Tray) Inferring() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inferring
}

// Status returns the status line text.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func statusTitle(status string) string {
	if status == "" {
		return "Idle"
	}
	return status
}
