package control

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/camscroll/internal/embedding"
	"github.com/ayusman/camscroll/internal/gesture"
	"github.com/ayusman/camscroll/internal/knn"
)

// Classifier is the frame-level classifier the loop drives. The loop treats
// it as a black box: it supplies labelled frames, asks for labels, and moves
// weights in and out of storage.
type Classifier interface {
	AddSample(frame *gocv.Mat, class gesture.Class) error
	// Predict returns gesture.None when nothing has been learned yet.
	Predict(frame *gocv.Mat) (gesture.Class, error)
	ClearClass(class gesture.Class) error
	Counts() []int
	Weights() knn.Weights
	SetWeights(w knn.Weights) error
	Width() int
}

// Model is a Classifier built from an embedder and a KNN index.
type Model struct {
	embedder embedding.Embedder
	index    *knn.Classifier
}

// NewModel creates a model classifying into gesture.NumClasses classes by
// k nearest neighbours.
func NewModel(e embedding.Embedder, k int) *Model {
	return &Model{
		embedder: e,
		index:    knn.New(gesture.NumClasses, k, e.Width()),
	}
}

// AddSample embeds frame and stores it under class.
func (m *Model) AddSample(frame *gocv.Mat, class gesture.Class) error {
	vec, err := m.embedder.Embed(frame)
	if err != nil {
		return fmt.Errorf("embed frame: %w", err)
	}
	return m.index.AddSample(vec, int(class))
}

// Predict embeds frame and returns the nearest class.
func (m *Model) Predict(frame *gocv.Mat) (gesture.Class, error) {
	vec, err := m.embedder.Embed(frame)
	if err != nil {
		return gesture.None, fmt.Errorf("embed frame: %w", err)
	}
	p, err := m.index.Predict(vec)
	if err != nil {
		return gesture.None, err
	}
	return gesture.Class(p.Class), nil
}

// ClearClass drops every sample of class.
func (m *Model) ClearClass(class gesture.Class) error {
	return m.index.ClearClass(int(class))
}

// Counts returns per-class sample counts.
func (m *Model) Counts() []int {
	return m.index.Counts()
}

// Weights returns the stored samples.
func (m *Model) Weights() knn.Weights {
	return m.index.Weights()
}

// SetWeights replaces the stored samples.
func (m *Model) SetWeights(w knn.Weights) error {
	return m.index.SetWeights(w)
}

// Width returns the embedding width.
func (m *Model) Width() int {
	return m.index.Width()
}
