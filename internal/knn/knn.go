// Package knn implements a k-nearest-neighbours classifier over fixed-width
// image embeddings. Samples are stored L2-normalised, one dense matrix per
// class, and compared with cosine similarity.
package knn

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultK is the number of neighbours consulted by Predict.
const DefaultK = 5

var (
	// ErrWidthMismatch is returned when a vector or stored weight set does not
	// match the classifier's embedding width.
	ErrWidthMismatch = errors.New("embedding width mismatch")
	// ErrClassOutOfRange is returned for class indices outside [0, numClasses).
	ErrClassOutOfRange = errors.New("class index out of range")
	// ErrZeroVector is returned when asked to learn a vector with zero norm.
	ErrZeroVector = errors.New("zero-length embedding")
)

// Prediction is the result of classifying one embedding.
type Prediction struct {
	// Class is the winning class index, or -1 if no samples are stored.
	Class int
	// Confidences holds, per class, the share of the k neighbours that
	// voted for it.
	Confidences []float64
}

// Classifier is a KNN classifier. It is safe for concurrent use.
type Classifier struct {
	numClasses int
	k          int
	width      int

	mu sync.RWMutex
	// samples[c] is a row-major matrix of rows[c] x width.
	samples [][]float64
	rows    []int
}

// New creates an empty classifier.
func New(numClasses, k, width int) *Classifier {
	if k <= 0 {
		k = DefaultK
	}
	return &Classifier{
		numClasses: numClasses,
		k:          k,
		width:      width,
		samples:    make([][]float64, numClasses),
		rows:       make([]int, numClasses),
	}
}

// Width returns the embedding width this classifier accepts.
func (c *Classifier) Width() int {
	return c.width
}

// NumClasses returns the number of classes.
func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// AddSample stores vec as a training example of class.
func (c *Classifier) AddSample(vec []float64, class int) error {
	if class < 0 || class >= c.numClasses {
		return fmt.Errorf("%w: %d", ErrClassOutOfRange, class)
	}
	if len(vec) != c.width {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(vec), c.width)
	}

	norm := floats.Norm(vec, 2)
	if norm == 0 {
		return ErrZeroVector
	}

	row := make([]float64, len(vec))
	floats.ScaleTo(row, 1/norm, vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples[class] = append(c.samples[class], row...)
	c.rows[class]++
	return nil
}

// neighbour is one stored sample scored against a query.
type neighbour struct {
	class      int
	similarity float64
}

// Predict classifies vec. With no stored samples it returns Class -1 and a
// nil error.
func (c *Classifier) Predict(vec []float64) (Prediction, error) {
	if len(vec) != c.width {
		return Prediction{Class: -1}, fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(vec), c.width)
	}

	confidences := make([]float64, c.numClasses)

	norm := floats.Norm(vec, 2)
	if norm == 0 {
		return Prediction{Class: -1, Confidences: confidences}, nil
	}
	query := mat.NewVecDense(c.width, nil)
	query.ScaleVec(1/norm, mat.NewVecDense(c.width, vec))

	c.mu.RLock()
	var neighbours []neighbour
	for class := 0; class < c.numClasses; class++ {
		n := c.rows[class]
		if n == 0 {
			continue
		}
		m := mat.NewDense(n, c.width, c.samples[class])
		sims := mat.NewVecDense(n, nil)
		sims.MulVec(m, query)
		for i := 0; i < n; i++ {
			neighbours = append(neighbours, neighbour{class: class, similarity: sims.AtVec(i)})
		}
	}
	c.mu.RUnlock()

	if len(neighbours) == 0 {
		return Prediction{Class: -1, Confidences: confidences}, nil
	}

	sort.SliceStable(neighbours, func(i, j int) bool {
		return neighbours[i].similarity > neighbours[j].similarity
	})

	k := c.k
	if k > len(neighbours) {
		k = len(neighbours)
	}

	votes := make([]int, c.numClasses)
	sums := make([]float64, c.numClasses)
	for _, nb := range neighbours[:k] {
		votes[nb.class]++
		sums[nb.class] += nb.similarity
	}

	best := -1
	for class := 0; class < c.numClasses; class++ {
		confidences[class] = float64(votes[class]) / float64(k)
		if votes[class] == 0 {
			continue
		}
		if best < 0 || votes[class] > votes[best] ||
			(votes[class] == votes[best] && sums[class] > sums[best]) {
			best = class
		}
	}

	return Prediction{Class: best, Confidences: confidences}, nil
}

// ClearClass removes every sample of class.
func (c *Classifier) ClearClass(class int) error {
	if class < 0 || class >= c.numClasses {
		return fmt.Errorf("%w: %d", ErrClassOutOfRange, class)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples[class] = nil
	c.rows[class] = 0
	return nil
}

// ClassCount returns the number of samples stored for class.
func (c *Classifier) ClassCount(class int) int {
	if class < 0 || class >= c.numClasses {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rows[class]
}

// Counts returns the sample count of every class.
func (c *Classifier) Counts() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make([]int, c.numClasses)
	copy(counts, c.rows)
	return counts
}
