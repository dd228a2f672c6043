// Package actuator scrolls the page on behalf of the control loop. An "on"
// message starts a fixed-step scroll repeated on a short period and shows a
// direction indicator; "off" stops it and hides the indicators. An "on" that
// arrives with no page open is held until a page appears or an "off" comes.
package actuator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/gesture"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/periodic"
	"github.com/ayusman/camscroll/internal/protocol"
)

// ErrNoPage is returned by a Page when there is nothing to scroll.
var ErrNoPage = errors.New("no active page")

// Defaults.
const (
	DefaultStepPx = 20
	DefaultPeriod = 50 * time.Millisecond
)

// Page is the surface being scrolled.
type Page interface {
	// ScrollBy scrolls vertically by dy pixels; positive is down.
	ScrollBy(dy int) error
	// SetIndicator shows or hides the indicator for a direction.
	SetIndicator(d gesture.Direction, visible bool) error
}

// State is the actuator's scroll state.
type State int

const (
	Idle State = iota
	ScrollingDown
	ScrollingUp
)

func (s State) String() string {
	switch s {
	case ScrollingDown:
		return "scrolling-down"
	case ScrollingUp:
		return "scrolling-up"
	default:
		return "idle"
	}
}

// Config wires the actuator.
type Config struct {
	Page   Page
	StepPx int
	Period time.Duration
	Logger *zap.Logger
}

// Actuator applies actuation messages to a page.
type Actuator struct {
	page   Page
	period time.Duration
	logger *zap.Logger
	step   atomic.Int64
	state  atomic.Int32

	// mu serialises Handle and Stop. The scroll task never takes it.
	mu   sync.Mutex
	task *periodic.Task
}

// New creates an idle actuator.
func New(cfg Config) *Actuator {
	if cfg.StepPx <= 0 {
		cfg.StepPx = DefaultStepPx
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	a := &Actuator{
		page:   cfg.Page,
		period: cfg.Period,
		logger: cfg.Logger.Named("actuator"),
	}
	a.step.Store(int64(cfg.StepPx))
	return a
}

// SetStep changes the scroll step. It applies from the next tick.
func (a *Actuator) SetStep(px int) {
	if px <= 0 {
		return
	}
	a.step.Store(int64(px))
}

// Step returns the scroll step in pixels.
func (a *Actuator) Step() int {
	return int(a.step.Load())
}

// State returns the current scroll state. It stays Idle while an "on" is
// waiting for a page.
func (a *Actuator) State() State {
	return State(a.state.Load())
}

// Handle applies one message. Off is applied before On. Once Handle returns
// after an off, the page is not scrolled again until the next on.
func (a *Actuator) Handle(ctx context.Context, msg protocol.Actuation) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if msg.Off {
		a.stopLocked()
	}
	if msg.On != nil {
		a.startLocked(ctx, msg.On.Direction)
	}
	return nil
}

// Stop cancels any scrolling and hides the indicators.
func (a *Actuator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Actuator) stopLocked() {
	a.task.Cancel()
	a.task = nil
	a.state.Store(int32(Idle))

	for _, d := range []gesture.Direction{gesture.DirectionUp, gesture.DirectionDown} {
		if err := a.page.SetIndicator(d, false); err != nil && !errors.Is(err, ErrNoPage) {
			a.logger.Warn("failed to hide indicator", zap.String("direction", string(d)), zap.Error(err))
		}
	}
}

func (a *Actuator) startLocked(ctx context.Context, d gesture.Direction) {
	// An on without a preceding off replaces the running scroll.
	a.task.Cancel()
	a.task = nil
	a.state.Store(int32(Idle))

	scrolling, sign := ScrollingDown, 1
	if d == gesture.DirectionUp {
		scrolling, sign = ScrollingUp, -1
	}

	shown := false
	if err := a.page.SetIndicator(d, true); err != nil {
		if !errors.Is(err, ErrNoPage) {
			a.logger.Warn("failed to show indicator", zap.String("direction", string(d)), zap.Error(err))
			return
		}
		a.logger.Info("no active tab, holding scroll", zap.String("direction", string(d)))
	} else {
		shown = true
		a.state.Store(int32(scrolling))
	}

	// shown is only touched by the task goroutine from here on.
	a.task = periodic.Start(ctx, a.period, func(context.Context) {
		if !shown {
			if err := a.page.SetIndicator(d, true); err != nil {
				return
			}
			shown = true
			a.state.Store(int32(scrolling))
			a.logger.Info("page appeared, scrolling", zap.String("direction", string(d)))
		}
		dy := sign * a.Step()
		if err := a.page.ScrollBy(dy); err != nil {
			a.logger.Debug("scroll failed", zap.Int("dy", dy), zap.Error(err))
		}
	})
	a.logger.Debug("scrolling", zap.String("direction", string(d)))
}

// Run applies messages from ch until ctx is done, then stops scrolling.
func (a *Actuator) Run(ctx context.Context, ch *msgbus.Channel[protocol.Actuation]) error {
	defer a.Stop()

	for {
		msg, ok := ch.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := a.Handle(ctx, msg); err != nil {
			a.logger.Warn("rejected message", zap.Stringer("msg", msg), zap.Error(err))
		}
	}
}
