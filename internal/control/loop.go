// Package control implements the control loop: it owns the classifier and
// the session mode, samples the camera on a fixed tick, and turns prediction
// changes into actuator messages.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/capture"
	"github.com/ayusman/camscroll/internal/gesture"
	"github.com/ayusman/camscroll/internal/knn"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/periodic"
	"github.com/ayusman/camscroll/internal/protocol"
	"github.com/ayusman/camscroll/internal/store"
)

// DefaultTick is the sampling period.
const DefaultTick = 50 * time.Millisecond

// LegacyWidth is the embedding width assumed for stored weights saved
// without one.
const LegacyWidth = 1000

// Session is the loop's mutable mode. Target and Inferring are never both
// active.
type Session struct {
	// Target is the class being trained, or gesture.None.
	Target gesture.Class
	// Inferring is true while predictions drive the actuator.
	Inferring bool
	// Previous is the last prediction, used to suppress repeated messages.
	Previous gesture.Class
}

// Status is a point-in-time view of the loop for the API and tray.
type Status struct {
	Target    string `json:"target"`
	Inferring bool   `json:"inferring"`
	Previous  string `json:"previous"`
	Samples   []int  `json:"samples"`
	Camera    bool   `json:"camera"`
}

// Config wires the loop to its collaborators.
type Config struct {
	Source     capture.Source
	Classifier Classifier
	Store      *store.Store
	Downstream msgbus.Sender[protocol.Actuation]
	Logger     *zap.Logger
	Tick       time.Duration
}

// Loop is the control loop.
type Loop struct {
	source     capture.Source
	classifier Classifier
	store      *store.Store
	downstream msgbus.Sender[protocol.Actuation]
	logger     *zap.Logger
	tick       time.Duration

	// mu serialises commands, ticks and status reads.
	mu             sync.Mutex
	session        Session
	persistedInfer bool
	dirty          bool
	trainingID     string
	cameraReady    bool
}

// New creates a loop. Nothing runs until Run is called.
func New(cfg Config) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Downstream == nil {
		cfg.Downstream = msgbus.SenderFunc[protocol.Actuation](func(protocol.Actuation) error {
			return msgbus.ErrDropped
		})
	}

	return &Loop{
		source:     cfg.Source,
		classifier: cfg.Classifier,
		store:      cfg.Store,
		downstream: cfg.Downstream,
		logger:     cfg.Logger.Named("control"),
		tick:       cfg.Tick,
		session: Session{
			Target:   gesture.None,
			Previous: gesture.None,
		},
	}
}

// Restore loads the persisted inference flag and classifier weights.
// Problems with stored weights are logged and leave the classifier empty.
func (l *Loop) Restore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	infer, err := l.store.Settings().GetBool(store.KeyInfer)
	if err != nil {
		return fmt.Errorf("restore infer flag: %w", err)
	}
	l.session.Inferring = infer
	l.persistedInfer = infer

	var w knn.Weights
	err = l.store.Settings().GetJSON(store.KeyModelParams, &w)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		l.logger.Warn("stored weights unreadable, starting untrained", zap.Error(err))
		return nil
	}

	if w.Width == 0 {
		w.Width = LegacyWidth
	}
	if err := l.classifier.SetWeights(w); err != nil {
		l.logger.Warn("stored weights rejected, starting untrained",
			zap.Int("stored_width", w.Width),
			zap.Int("classifier_width", l.classifier.Width()),
			zap.Error(err))
		return nil
	}

	l.logger.Info("restored classifier weights", zap.Ints("samples", l.classifier.Counts()))
	return nil
}

// HandleCommand applies one command to the session.
func (l *Loop) HandleCommand(ctx context.Context, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Debug("command", zap.Stringer("cmd", cmd))

	switch {
	case cmd.Train != nil:
		option := *cmd.Train
		if option == gesture.OptionSave {
			if err := l.saveLocked(); err != nil {
				l.logger.Error("failed to save weights", zap.Error(err))
			}
		}

		target, _ := option.Target()
		if l.session.Inferring {
			l.session.Inferring = false
			l.handlePredictionLocked(gesture.None)
		}
		l.session.Target = target
		if target != gesture.None {
			l.beginTrainingLocked()
		}

	case cmd.Infer != nil:
		l.session.Inferring = *cmd.Infer
		if l.session.Inferring {
			l.session.Target = gesture.None
		} else {
			l.handlePredictionLocked(gesture.None)
		}

	case cmd.Reset != nil:
		for _, class := range gesture.All {
			if err := l.classifier.ClearClass(class); err != nil {
				l.logger.Error("failed to clear class", zap.Stringer("class", class), zap.Error(err))
			}
		}
		l.dirty = true
	}

	l.persistInferLocked()
	return nil
}

// Tick performs one sampling step: predict while inferring, add a sample
// while training, nothing otherwise.
func (l *Loop) Tick(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.session.Inferring && l.session.Target == gesture.None {
		return
	}
	if l.source == nil {
		return
	}

	frame, err := l.source.ReadFrame()
	if err != nil {
		l.logger.Debug("frame capture failed", zap.Error(err))
		return
	}
	defer frame.Close()

	if l.session.Inferring {
		class, err := l.classifier.Predict(frame)
		if err != nil {
			l.logger.Warn("prediction failed", zap.Error(err))
			return
		}
		l.handlePredictionLocked(class)
		return
	}

	if err := l.classifier.AddSample(frame, l.session.Target); err != nil {
		l.logger.Warn("failed to add sample", zap.Stringer("class", l.session.Target), zap.Error(err))
		return
	}
	l.dirty = true
}

// handlePredictionLocked sends an actuator message when the predicted class
// changes. Leaving a direction sends off; entering one sends on.
func (l *Loop) handlePredictionLocked(class gesture.Class) {
	if class == l.session.Previous {
		return
	}

	var msg protocol.Actuation
	if l.session.Previous.Direction().Valid() {
		msg.Off = true
	}
	l.session.Previous = class
	if d := class.Direction(); d.Valid() {
		msg.On = &protocol.On{Direction: d}
	}

	if !msg.Off && msg.On == nil {
		return
	}
	if err := l.downstream.Send(msg); err != nil {
		l.logger.Warn("actuator message not delivered", zap.Stringer("msg", msg), zap.Error(err))
		return
	}
	l.logger.Debug("actuator message sent", zap.Stringer("msg", msg))
}

// persistInferLocked writes the inference flag when it differs from what
// is stored.
func (l *Loop) persistInferLocked() {
	if l.store == nil || l.session.Inferring == l.persistedInfer {
		return
	}
	if err := l.store.Settings().SetBool(store.KeyInfer, l.session.Inferring); err != nil {
		l.logger.Error("failed to persist infer flag", zap.Error(err))
		return
	}
	l.persistedInfer = l.session.Inferring
}

// beginTrainingLocked opens a training session record if none is open.
func (l *Loop) beginTrainingLocked() {
	if l.store == nil || l.trainingID != "" {
		return
	}
	ts := &store.TrainingSession{}
	if err := l.store.Sessions().Create(ts); err != nil {
		l.logger.Warn("failed to record training session", zap.Error(err))
		return
	}
	l.trainingID = ts.ID
}

// saveLocked persists the classifier weights and closes the open training
// session record.
func (l *Loop) saveLocked() error {
	if l.store == nil {
		return nil
	}

	if err := l.store.Settings().SetJSON(store.KeyModelParams, l.classifier.Weights()); err != nil {
		return err
	}
	l.dirty = false

	counts := l.classifier.Counts()
	l.logger.Info("saved classifier weights", zap.Ints("samples", counts))

	if l.trainingID != "" {
		err := l.store.Sessions().Finish(l.trainingID,
			counts[gesture.NoAction], counts[gesture.Down], counts[gesture.Up])
		if err != nil {
			l.logger.Warn("failed to finish training session", zap.Error(err))
		}
		l.trainingID = ""
	}
	return nil
}

// Save persists the classifier weights now.
func (l *Loop) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

// Session returns a copy of the current session state.
func (l *Loop) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Status returns a snapshot for display.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Status{
		Target:    l.session.Target.String(),
		Inferring: l.session.Inferring,
		Previous:  l.session.Previous.String(),
		Samples:   l.classifier.Counts(),
		Camera:    l.cameraReady,
	}
}

// Run opens the camera, starts the sampling tick and applies commands from
// the inbound channel until ctx is done. On exit, unsaved samples are
// persisted. A camera that cannot be opened is logged and leaves the loop
// accepting commands without sampling.
func (l *Loop) Run(ctx context.Context, commands *msgbus.Channel[protocol.Command]) error {
	var task *periodic.Task
	if l.openSource() {
		task = periodic.Start(ctx, l.tick, l.Tick)
		l.logger.Info("sampling started", zap.Duration("tick", l.tick))
	}

	defer func() {
		task.Cancel()
		if dev, ok := l.source.(capture.Device); ok {
			if err := dev.Close(); err != nil {
				l.logger.Warn("error closing camera", zap.Error(err))
			}
		}

		l.mu.Lock()
		dirty := l.dirty
		l.mu.Unlock()
		if dirty {
			if err := l.Save(); err != nil {
				l.logger.Error("failed to save weights on shutdown", zap.Error(err))
			}
		}
	}()

	for {
		cmd, ok := commands.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := l.HandleCommand(ctx, cmd); err != nil {
			l.logger.Warn("rejected command", zap.Stringer("cmd", cmd), zap.Error(err))
		}
	}
}

// openSource opens the frame source if it is a device, recording camera
// access on success.
func (l *Loop) openSource() bool {
	if l.source == nil {
		l.logger.Warn("no frame source configured; gesture control inactive")
		return false
	}

	dev, ok := l.source.(capture.Device)
	if ok && !dev.IsOpen() {
		if err := dev.Open(); err != nil {
			l.logger.Warn("camera unavailable; gesture control inactive", zap.Error(err))
			return false
		}
	}

	l.mu.Lock()
	l.cameraReady = true
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Settings().SetBool(store.KeyCamAccess, true); err != nil {
			l.logger.Warn("failed to record camera access", zap.Error(err))
		}
	}
	return true
}
