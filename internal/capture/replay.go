package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// Replay plays back a fixed sequence of frames. It is used in tests and for
// running the daemon against recorded footage.
type Replay struct {
	frames []*gocv.Mat
	loop   bool

	mu    sync.Mutex
	index int
	open  bool
	reads int
}

// NewReplay creates a source over frames. With loop set, playback wraps
// around; otherwise ReadFrame fails once frames are exhausted.
func NewReplay(frames []*gocv.Mat, loop bool) *Replay {
	return &Replay{frames: frames, loop: loop}
}

// Open rewinds playback.
func (r *Replay) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	r.index = 0
	return nil
}

// Close stops playback.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

// IsOpen reports whether Open has been called.
func (r *Replay) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// ReadFrame returns a clone of the next frame.
func (r *Replay) ReadFrame() (*gocv.Mat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return nil, ErrCameraNotOpen
	}
	if len(r.frames) == 0 {
		return nil, ErrNoFrame
	}
	if r.index >= len(r.frames) {
		if !r.loop {
			return nil, ErrNoFrame
		}
		r.index = 0
	}

	frame := r.frames[r.index].Clone()
	r.index++
	r.reads++
	return &frame, nil
}

// Reads returns how many frames have been delivered.
func (r *Replay) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// SetFrames replaces the sequence and rewinds.
func (r *Replay) SetFrames(frames []*gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = frames
	r.index = 0
}
