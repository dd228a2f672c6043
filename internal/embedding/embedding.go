// Package embedding turns camera frames into fixed-width vectors for the
// KNN classifier.
package embedding

import (
	"errors"

	"gocv.io/x/gocv"
)

// Width is the embedding width persisted weights are tied to. Changing the
// embedder to one of a different width invalidates stored weights.
const Width = 1000

var (
	// ErrEmptyFrame is returned when asked to embed a nil or empty frame.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrModelLoad is returned when a network file cannot be loaded.
	ErrModelLoad = errors.New("failed to load embedding model")
	// ErrOutputWidth is returned when a network's output is not Width wide.
	ErrOutputWidth = errors.New("unexpected embedding width")
)

// Embedder computes an embedding for a frame.
type Embedder interface {
	// Embed returns a Width()-long vector for frame. It does not take
	// ownership of frame.
	Embed(frame *gocv.Mat) ([]float64, error)

	// Width returns the length of every vector Embed returns.
	Width() int

	// Close releases any resources held by the embedder.
	Close() error
}
