// Package panel is the operator's control surface: it toggles inference and
// runs the scripted training sequence that walks the user through each
// gesture class.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/gesture"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/protocol"
	"github.com/ayusman/camscroll/internal/store"
)

// ErrTrainingRunning is returned when a training script is already running.
var ErrTrainingRunning = errors.New("training already running")

// Default phase lengths.
const (
	DefaultPrepareDelay = 2 * time.Second
	DefaultRecordDelay  = 5 * time.Second
)

// Clock supplies the delays between phases.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Phase is one step of the training script: show Status, send Option, then
// wait Delay before the next phase.
type Phase struct {
	Status string
	Option gesture.Option
	Delay  time.Duration
}

// Script returns the training phases in order. The final save is not a
// phase; it runs after the last delay.
func Script(prepare, record time.Duration) []Phase {
	in := func(what string) string {
		return fmt.Sprintf("Training %s in %s", what, seconds(prepare))
	}
	during := func(what string) string {
		return fmt.Sprintf("Training %s for %s", what, seconds(record))
	}
	return []Phase{
		{in("no action"), gesture.OptionOff, prepare},
		{during("no action"), gesture.OptionNoAction, record},
		{in("scroll down"), gesture.OptionOff, prepare},
		{during("scroll down"), gesture.OptionDown, record},
		{in("scroll up"), gesture.OptionOff, prepare},
		{during("scroll up"), gesture.OptionUp, record},
	}
}

func seconds(d time.Duration) string {
	n := int(d.Round(time.Second) / time.Second)
	if n == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", n)
}

// Config wires the panel.
type Config struct {
	Commands     msgbus.Sender[protocol.Command]
	Store        *store.Store
	Logger       *zap.Logger
	Clock        Clock
	PrepareDelay time.Duration
	RecordDelay  time.Duration
}

// Panel drives the control loop on behalf of the operator.
type Panel struct {
	commands msgbus.Sender[protocol.Command]
	store    *store.Store
	logger   *zap.Logger
	clock    Clock
	script   []Phase

	mu        sync.Mutex
	running   bool
	status    string
	nextID    int
	observers map[int]func(string)
	wg        sync.WaitGroup
}

// New creates a panel.
func New(cfg Config) *Panel {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.PrepareDelay <= 0 {
		cfg.PrepareDelay = DefaultPrepareDelay
	}
	if cfg.RecordDelay <= 0 {
		cfg.RecordDelay = DefaultRecordDelay
	}

	return &Panel{
		commands:  cfg.Commands,
		store:     cfg.Store,
		logger:    cfg.Logger.Named("panel"),
		clock:     cfg.Clock,
		script:    Script(cfg.PrepareDelay, cfg.RecordDelay),
		observers: make(map[int]func(string)),
	}
}

// StartTraining launches the training script in the background. Inference
// is switched off and all samples are reset before the first phase; when
// the script completes the weights are saved and inference is switched on.
func (p *Panel) StartTraining(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrTrainingRunning
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
		}()
		p.runScript(ctx)
	}()
	return nil
}

func (p *Panel) runScript(ctx context.Context) {
	p.logger.Info("training started")

	p.persistInfer(false)
	p.send(protocol.Infer(false))
	p.send(protocol.Reset())

	for _, phase := range p.script {
		p.setStatus(phase.Status)
		p.send(protocol.Train(phase.Option))

		select {
		case <-p.clock.After(phase.Delay):
		case <-ctx.Done():
			p.logger.Info("training aborted", zap.Error(ctx.Err()))
			p.setStatus("")
			return
		}
	}

	p.send(protocol.Train(gesture.OptionSave))
	p.persistInfer(true)
	p.send(protocol.Infer(true))
	p.setStatus("")
	p.logger.Info("training finished")
}

// SetInfer switches inference on or off, as the inference checkbox does.
func (p *Panel) SetInfer(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.Settings().SetBool(store.KeyInfer, on); err != nil {
			return err
		}
	}
	p.send(protocol.Infer(on))
	return nil
}

// Inferring returns the persisted inference flag.
func (p *Panel) Inferring() (bool, error) {
	if p.store == nil {
		return false, nil
	}
	return p.store.Settings().GetBool(store.KeyInfer)
}

// Status returns the current training status line. It is empty when no
// script is running.
func (p *Panel) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Running reports whether a training script is in progress.
func (p *Panel) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Subscribe registers fn to receive status changes. The returned function
// removes the subscription.
func (p *Panel) Subscribe(fn func(status string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.observers[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

// Wait blocks until any running script has returned.
func (p *Panel) Wait() {
	p.wg.Wait()
}

func (p *Panel) setStatus(status string) {
	p.mu.Lock()
	p.status = status
	observers := make([]func(string), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	for _, fn := range observers {
		fn(status)
	}
}

func (p *Panel) send(cmd protocol.Command) {
	if p.commands == nil {
		return
	}
	if err := p.commands.Send(cmd); err != nil {
		p.logger.Warn("command not delivered", zap.Stringer("cmd", cmd), zap.Error(err))
	}
}

func (p *Panel) persistInfer(on bool) {
	if p.store == nil {
		return
	}
	if err := p.store.Settings().SetBool(store.KeyInfer, on); err != nil {
		p.logger.Error("failed to persist infer flag", zap.Error(err))
	}
}
