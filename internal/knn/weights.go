package knn

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Weights is the serialisable state of a classifier: every stored sample,
// flattened per class. A class without samples is an empty slice.
type Weights struct {
	Width   int         `json:"width"`
	Classes [][]float64 `json:"classes"`
}

// Rows returns the number of samples stored for class in w.
func (w Weights) Rows(class int) int {
	if w.Width <= 0 || class < 0 || class >= len(w.Classes) {
		return 0
	}
	return len(w.Classes[class]) / w.Width
}

// UnmarshalJSON accepts both the versioned object form and a bare array of
// per-class flat arrays. The bare form carries no width, so Width is left
// at zero for the caller to fill in.
func (w *Weights) UnmarshalJSON(data []byte) error {
	var bare [][]float64
	if err := json.Unmarshal(data, &bare); err == nil {
		w.Width = 0
		w.Classes = bare
		return nil
	}

	type plain Weights
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*w = Weights(p)
	return nil
}

// Weights returns a copy of the stored samples.
func (c *Classifier) Weights() Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w := Weights{
		Width:   c.width,
		Classes: make([][]float64, c.numClasses),
	}
	for class := range c.samples {
		flat := make([]float64, len(c.samples[class]))
		copy(flat, c.samples[class])
		w.Classes[class] = flat
	}
	return w
}

// SetWeights replaces every stored sample with w. The whole set is
// validated first; on error the classifier is left unchanged.
// Every row is L2-normalised on load; a zero row is rejected.
func (c *Classifier) SetWeights(w Weights) error {
	if w.Width != c.width {
		return fmt.Errorf("%w: stored width %d, classifier width %d", ErrWidthMismatch, w.Width, c.width)
	}
	if len(w.Classes) > c.numClasses {
		return fmt.Errorf("%w: %d stored classes, classifier has %d", ErrClassOutOfRange, len(w.Classes), c.numClasses)
	}
	for class, flat := range w.Classes {
		if len(flat)%c.width != 0 {
			return fmt.Errorf("%w: class %d has %d values, not a multiple of %d", ErrWidthMismatch, class, len(flat), c.width)
		}
	}

	samples := make([][]float64, c.numClasses)
	rows := make([]int, c.numClasses)
	for class, flat := range w.Classes {
		if len(flat) == 0 {
			continue
		}
		normalised := make([]float64, len(flat))
		for start := 0; start < len(flat); start += c.width {
			row := flat[start : start+c.width]
			norm := floats.Norm(row, 2)
			if norm == 0 {
				return fmt.Errorf("%w: class %d row %d", ErrZeroVector, class, start/c.width)
			}
			floats.ScaleTo(normalised[start:start+c.width], 1/norm, row)
		}
		samples[class] = normalised
		rows[class] = len(flat) / c.width
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = samples
	c.rows = rows
	return nil
}
