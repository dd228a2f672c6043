package control

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/camscroll/internal/capture"
	"github.com/ayusman/camscroll/internal/embedding"
	"github.com/ayusman/camscroll/internal/gesture"
	"github.com/ayusman/camscroll/internal/knn"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/protocol"
	"github.com/ayusman/camscroll/internal/store"
)

// scriptedClassifier returns a fixed prediction and counts samples.
type scriptedClassifier struct {
	predict gesture.Class
	counts  [gesture.NumClasses]int
}

func (c *scriptedClassifier) AddSample(_ *gocv.Mat, class gesture.Class) error {
	c.counts[class]++
	return nil
}

func (c *scriptedClassifier) Predict(_ *gocv.Mat) (gesture.Class, error) {
	return c.predict, nil
}

func (c *scriptedClassifier) ClearClass(class gesture.Class) error {
	c.counts[class] = 0
	return nil
}

func (c *scriptedClassifier) Counts() []int {
	return c.counts[:]
}

func (c *scriptedClassifier) Weights() knn.Weights {
	return knn.Weights{Width: 4, Classes: make([][]float64, gesture.NumClasses)}
}

func (c *scriptedClassifier) SetWeights(knn.Weights) error { return nil }

func (c *scriptedClassifier) Width() int { return 4 }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSource(t *testing.T) *capture.Replay {
	t.Helper()
	return newSolidSource(t, gocv.NewScalar(40, 120, 200, 0))
}

// newSolidSource replays a single looping frame filled with colour.
func newSolidSource(t *testing.T, colour gocv.Scalar) *capture.Replay {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(colour, 48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	src := capture.NewReplay([]*gocv.Mat{&frame}, true)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

type harness struct {
	loop       *Loop
	classifier *scriptedClassifier
	downstream *msgbus.Channel[protocol.Actuation]
}

func newHarness(t *testing.T, st *store.Store) *harness {
	t.Helper()
	h := &harness{
		classifier: &scriptedClassifier{predict: gesture.None},
		downstream: msgbus.New[protocol.Actuation](16),
	}
	h.loop = New(Config{
		Source:     newTestSource(t),
		Classifier: h.classifier,
		Store:      st,
		Downstream: h.downstream,
	})
	return h
}

func (h *harness) drain() []protocol.Actuation {
	var out []protocol.Actuation
	for {
		select {
		case msg := <-h.downstream.C():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func mustHandle(t *testing.T, l *Loop, cmd protocol.Command) {
	t.Helper()
	if err := l.HandleCommand(context.Background(), cmd); err != nil {
		t.Fatalf("HandleCommand(%v) error = %v", cmd, err)
	}
}

func TestLoop_TrainingAddsSamplesToTarget(t *testing.T) {
	src := newTestSource(t)
	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Source: src, Classifier: model})
	ctx := context.Background()

	mustHandle(t, loop, protocol.Train(gesture.OptionDown))
	for i := 0; i < 5; i++ {
		loop.Tick(ctx)
	}

	counts := model.Counts()
	want := []int{0, 5, 0}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("Counts() = %v, want %v", counts, want)
		}
	}
	if s := loop.Session(); s.Target != gesture.Down || s.Inferring {
		t.Errorf("session = %+v, want training down", s)
	}
}

func TestLoop_TrainingKeepsBlackFrames(t *testing.T) {
	src := newSolidSource(t, gocv.NewScalar(0, 0, 0, 0))
	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Source: src, Classifier: model})
	ctx := context.Background()

	mustHandle(t, loop, protocol.Train(gesture.OptionNoAction))
	for i := 0; i < 3; i++ {
		loop.Tick(ctx)
	}

	if counts := model.Counts(); counts[0] != 3 {
		t.Errorf("Counts() = %v, want 3 samples in class 0 from a dark camera", counts)
	}
}

func TestLoop_IdleTickDoesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.predict = gesture.Down

	h.loop.Tick(context.Background())

	if msgs := h.drain(); len(msgs) != 0 {
		t.Errorf("idle tick sent %v", msgs)
	}
	if h.classifier.counts[gesture.Down] != 0 {
		t.Error("idle tick added a sample")
	}
}

func TestLoop_RepeatedPredictionSendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mustHandle(t, h.loop, protocol.Infer(true))

	h.classifier.predict = gesture.Down
	for i := 0; i < 3; i++ {
		h.loop.Tick(ctx)
	}

	msgs := h.drain()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %v", len(msgs), msgs)
	}
	if msgs[0].Off || msgs[0].On == nil || msgs[0].On.Direction != gesture.DirectionDown {
		t.Errorf("message = %v, want on down", msgs[0])
	}
}

func TestLoop_PredictionTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    gesture.Class
		to      gesture.Class
		wantOff bool
		wantOn  gesture.Direction
		wantMsg bool
	}{
		{"down to up", gesture.Down, gesture.Up, true, gesture.DirectionUp, true},
		{"up to no action", gesture.Up, gesture.NoAction, true, gesture.DirectionNone, true},
		{"no action to down", gesture.NoAction, gesture.Down, false, gesture.DirectionDown, true},
		{"no action to none", gesture.NoAction, gesture.None, false, gesture.DirectionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			mustHandle(t, h.loop, protocol.Infer(true))

			h.classifier.predict = tt.from
			h.loop.Tick(ctx)
			h.drain()

			h.classifier.predict = tt.to
			h.loop.Tick(ctx)
			msgs := h.drain()

			if !tt.wantMsg {
				if len(msgs) != 0 {
					t.Fatalf("expected no message, got %v", msgs)
				}
				return
			}
			if len(msgs) != 1 {
				t.Fatalf("got %d messages, want 1: %v", len(msgs), msgs)
			}
			msg := msgs[0]
			if msg.Off != tt.wantOff {
				t.Errorf("Off = %v, want %v", msg.Off, tt.wantOff)
			}
			var got gesture.Direction
			if msg.On != nil {
				got = msg.On.Direction
			}
			if got != tt.wantOn {
				t.Errorf("On direction = %q, want %q", got, tt.wantOn)
			}
		})
	}
}

func TestLoop_InferFalseStopsActiveDirection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mustHandle(t, h.loop, protocol.Infer(true))
	h.classifier.predict = gesture.Up
	h.loop.Tick(ctx)
	h.drain()

	mustHandle(t, h.loop, protocol.Infer(false))

	msgs := h.drain()
	if len(msgs) != 1 || !msgs[0].Off || msgs[0].On != nil {
		t.Fatalf("messages = %v, want a single off", msgs)
	}

	// No prediction runs while inference is off.
	h.loop.Tick(ctx)
	if msgs := h.drain(); len(msgs) != 0 {
		t.Errorf("tick after infer:false sent %v", msgs)
	}
}

func TestLoop_ModesAreExclusive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	mustHandle(t, h.loop, protocol.Train(gesture.OptionUp))
	mustHandle(t, h.loop, protocol.Infer(true))
	if s := h.loop.Session(); s.Target != gesture.None || !s.Inferring {
		t.Errorf("after infer:true session = %+v", s)
	}

	h.classifier.predict = gesture.Down
	h.loop.Tick(ctx)
	h.drain()

	mustHandle(t, h.loop, protocol.Train(gesture.OptionNoAction))
	s := h.loop.Session()
	if s.Inferring || s.Target != gesture.NoAction {
		t.Errorf("after train:noaction session = %+v", s)
	}
	if msgs := h.drain(); len(msgs) != 1 || !msgs[0].Off {
		t.Errorf("train while scrolling sent %v, want a single off", msgs)
	}
}

func TestLoop_ResetThenPredictReturnsNoClass(t *testing.T) {
	src := newTestSource(t)
	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	downstream := msgbus.New[protocol.Actuation](4)
	loop := New(Config{Source: src, Classifier: model, Downstream: downstream})
	ctx := context.Background()

	mustHandle(t, loop, protocol.Train(gesture.OptionDown))
	loop.Tick(ctx)
	mustHandle(t, loop, protocol.Reset())

	for _, n := range model.Counts() {
		if n != 0 {
			t.Fatalf("Counts() after reset = %v", model.Counts())
		}
	}

	mustHandle(t, loop, protocol.Infer(true))
	loop.Tick(ctx)

	if s := loop.Session(); s.Previous != gesture.None {
		t.Errorf("Previous = %v, want none", s.Previous)
	}
	if downstream.Len() != 0 {
		t.Errorf("untrained prediction produced %d messages", downstream.Len())
	}
}

func TestLoop_InvalidCommandChangesNothing(t *testing.T) {
	h := newHarness(t, nil)
	mustHandle(t, h.loop, protocol.Train(gesture.OptionDown))
	before := h.loop.Session()

	yes := true
	bogus := gesture.Option("sideways")
	tests := []struct {
		name string
		cmd  protocol.Command
	}{
		{"empty", protocol.Command{}},
		{"two fields", protocol.Command{Infer: &yes, Reset: &yes}},
		{"unknown option", protocol.Command{Train: &bogus}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.loop.HandleCommand(context.Background(), tt.cmd)
			if !errors.Is(err, protocol.ErrInvalidCommand) {
				t.Errorf("expected ErrInvalidCommand, got %v", err)
			}
			if got := h.loop.Session(); got != before {
				t.Errorf("session changed: %+v -> %+v", before, got)
			}
		})
	}
}

func TestLoop_DroppedMessageIsNotRetried(t *testing.T) {
	downstream := msgbus.New[protocol.Actuation](1)
	classifier := &scriptedClassifier{predict: gesture.Down}
	loop := New(Config{Source: newTestSource(t), Classifier: classifier, Downstream: downstream})
	ctx := context.Background()

	// Fill the buffer so the next send is dropped.
	if err := downstream.Send(protocol.Stop()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mustHandle(t, loop, protocol.Infer(true))
	loop.Tick(ctx)
	loop.Tick(ctx)

	if s := loop.Session(); s.Previous != gesture.Down {
		t.Errorf("Previous = %v, want down", s.Previous)
	}
	if downstream.Len() != 1 {
		t.Errorf("Len() = %d, want only the original message", downstream.Len())
	}
}

func TestLoop_SavePersistsWeightsAndSession(t *testing.T) {
	st := newTestStore(t)
	src := newTestSource(t)
	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Source: src, Classifier: model, Store: st})
	ctx := context.Background()

	mustHandle(t, loop, protocol.Train(gesture.OptionUp))
	loop.Tick(ctx)
	loop.Tick(ctx)
	mustHandle(t, loop, protocol.Train(gesture.OptionSave))

	if s := loop.Session(); s.Target != gesture.None || s.Inferring {
		t.Errorf("after save session = %+v, want idle", s)
	}

	var w knn.Weights
	if err := st.Settings().GetJSON(store.KeyModelParams, &w); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if w.Width != embedding.Width || w.Rows(int(gesture.Up)) != 2 {
		t.Errorf("saved weights width=%d up rows=%d", w.Width, w.Rows(int(gesture.Up)))
	}

	sessions, err := st.Sessions().List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 training session, got %d", len(sessions))
	}
	if sessions[0].FinishedAt == nil || sessions[0].UpSamples != 2 {
		t.Errorf("session = %+v", sessions[0])
	}

	restored := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop2 := New(Config{Classifier: restored, Store: st})
	if err := loop2.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := restored.Counts()[gesture.Up]; got != 2 {
		t.Errorf("restored up samples = %d, want 2", got)
	}
}

func TestLoop_RestoreLegacyArray(t *testing.T) {
	st := newTestStore(t)

	row := make([]float64, LegacyWidth)
	for i := range row {
		row[i] = float64(i + 1)
	}
	legacy := [][]float64{{}, row, {}}
	if err := st.Settings().SetJSON(store.KeyModelParams, legacy); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	if err := st.Settings().SetBool(store.KeyInfer, true); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}

	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Classifier: model, Store: st})
	if err := loop.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	counts := model.Counts()
	if counts[0] != 0 || counts[1] != 1 || counts[2] != 0 {
		t.Errorf("Counts() = %v, want [0 1 0]", counts)
	}
	if !loop.Session().Inferring {
		t.Error("expected persisted infer=true to be restored")
	}
}

func TestLoop_RestoreWidthMismatchStartsEmpty(t *testing.T) {
	st := newTestStore(t)
	w := knn.Weights{Width: 8, Classes: [][]float64{{1, 2, 3, 4, 5, 6, 7, 8}, {}, {}}}
	if err := st.Settings().SetJSON(store.KeyModelParams, w); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Classifier: model, Store: st})
	if err := loop.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	for _, n := range model.Counts() {
		if n != 0 {
			t.Fatalf("Counts() = %v, want empty", model.Counts())
		}
	}
}

func TestLoop_InferFlagPersisted(t *testing.T) {
	st := newTestStore(t)
	h := newHarness(t, st)

	mustHandle(t, h.loop, protocol.Infer(true))
	if v, _ := st.Settings().GetBool(store.KeyInfer); !v {
		t.Error("infer:true was not persisted")
	}

	mustHandle(t, h.loop, protocol.Train(gesture.OptionOff))
	if v, _ := st.Settings().GetBool(store.KeyInfer); v {
		t.Error("train command did not persist infer=false")
	}
}

func TestLoop_RunProcessesCommandsAndSavesOnExit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed loop test in short mode")
	}

	st := newTestStore(t)
	src := newTestSource(t)
	model := NewModel(embedding.NewPixels(), knn.DefaultK)
	loop := New(Config{Source: src, Classifier: model, Store: st, Tick: 5 * time.Millisecond})
	commands := msgbus.New[protocol.Command](8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, commands) }()

	if err := commands.Send(protocol.Train(gesture.OptionNoAction)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for loop.Status().Samples[gesture.NoAction] < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for samples, status = %+v", loop.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	var w knn.Weights
	if err := st.Settings().GetJSON(store.KeyModelParams, &w); err != nil {
		t.Fatalf("weights not saved on exit: %v", err)
	}
	if w.Rows(int(gesture.NoAction)) < 3 {
		t.Errorf("saved %d no-action rows, want at least 3", w.Rows(int(gesture.NoAction)))
	}
	if v, _ := st.Settings().GetBool(store.KeyCamAccess); !v {
		t.Error("camera access was not recorded")
	}
	if src.IsOpen() {
		t.Error("source still open after Run returned")
	}
}
