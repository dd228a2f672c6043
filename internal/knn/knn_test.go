package knn

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

// basis returns a width-long vector with a 1 at index i.
func basis(width, i int) []float64 {
	v := make([]float64, width)
	v[i] = 1
	return v
}

func TestClassifier_PredictEmpty(t *testing.T) {
	c := New(3, 5, 4)

	p, err := c.Predict([]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if p.Class != -1 {
		t.Errorf("Class = %d, want -1 with no samples", p.Class)
	}
	if len(p.Confidences) != 3 {
		t.Errorf("len(Confidences) = %d, want 3", len(p.Confidences))
	}
}

func TestClassifier_PredictNearest(t *testing.T) {
	c := New(3, 3, 4)

	for i := 0; i < 3; i++ {
		if err := c.AddSample(basis(4, 0), 0); err != nil {
			t.Fatalf("AddSample() error = %v", err)
		}
		if err := c.AddSample(basis(4, 1), 1); err != nil {
			t.Fatalf("AddSample() error = %v", err)
		}
		if err := c.AddSample(basis(4, 2), 2); err != nil {
			t.Fatalf("AddSample() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		query []float64
		want  int
	}{
		{"class 0", []float64{0.9, 0.1, 0, 0}, 0},
		{"class 1", []float64{0.1, 5, 0.2, 0}, 1},
		{"class 2", []float64{0, 0, 2, 0.3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.Predict(tt.query)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if p.Class != tt.want {
				t.Errorf("Class = %d, want %d (confidences %v)", p.Class, tt.want, p.Confidences)
			}
			if p.Confidences[tt.want] != 1 {
				t.Errorf("Confidences[%d] = %f, want 1", tt.want, p.Confidences[tt.want])
			}
		})
	}
}

func TestClassifier_MajorityVote(t *testing.T) {
	c := New(2, 5, 2)

	// One very close sample of class 0, four slightly further of class 1.
	c.AddSample([]float64{1, 0}, 0)
	for i := 0; i < 4; i++ {
		c.AddSample([]float64{1, 0.3}, 1)
	}

	p, err := c.Predict([]float64{1, 0.01})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if p.Class != 1 {
		t.Errorf("Class = %d, want 1 by majority", p.Class)
	}
	if math.Abs(p.Confidences[1]-0.8) > 1e-9 {
		t.Errorf("Confidences[1] = %f, want 0.8", p.Confidences[1])
	}
}

func TestClassifier_TieBreaksOnSimilarity(t *testing.T) {
	c := New(2, 2, 2)
	c.AddSample([]float64{1, 1}, 0)
	c.AddSample([]float64{1, 0}, 1)

	p, err := c.Predict([]float64{1, 0.1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if p.Class != 1 {
		t.Errorf("Class = %d, want 1 (closer on a tied vote)", p.Class)
	}
}

func TestClassifier_Errors(t *testing.T) {
	c := New(3, 5, 4)

	if err := c.AddSample([]float64{1, 2}, 0); !errors.Is(err, ErrWidthMismatch) {
		t.Errorf("AddSample short vector: expected ErrWidthMismatch, got %v", err)
	}
	if err := c.AddSample(basis(4, 0), 3); !errors.Is(err, ErrClassOutOfRange) {
		t.Errorf("AddSample bad class: expected ErrClassOutOfRange, got %v", err)
	}
	if err := c.AddSample(make([]float64, 4), 0); !errors.Is(err, ErrZeroVector) {
		t.Errorf("AddSample zero vector: expected ErrZeroVector, got %v", err)
	}
	if _, err := c.Predict([]float64{1}); !errors.Is(err, ErrWidthMismatch) {
		t.Errorf("Predict short vector: expected ErrWidthMismatch, got %v", err)
	}
	if err := c.ClearClass(-1); !errors.Is(err, ErrClassOutOfRange) {
		t.Errorf("ClearClass(-1): expected ErrClassOutOfRange, got %v", err)
	}
}

func TestClassifier_ClearClass(t *testing.T) {
	c := New(3, 5, 4)
	c.AddSample(basis(4, 0), 0)
	c.AddSample(basis(4, 1), 1)
	c.AddSample(basis(4, 1), 1)

	for class := 0; class < 3; class++ {
		if err := c.ClearClass(class); err != nil {
			t.Fatalf("ClearClass(%d) error = %v", class, err)
		}
	}

	for class, n := range c.Counts() {
		if n != 0 {
			t.Errorf("class %d has %d samples after clear", class, n)
		}
	}

	p, err := c.Predict(basis(4, 1))
	if err != nil {
		t.Fatalf("Predict() after clear error = %v", err)
	}
	if p.Class != -1 {
		t.Errorf("Class = %d, want -1 after clearing every class", p.Class)
	}
}

func TestClassifier_WeightsRoundTrip(t *testing.T) {
	c := New(3, 5, 4)
	c.AddSample([]float64{3, 4, 0, 0}, 1)
	c.AddSample(basis(4, 2), 2)

	w := c.Weights()
	if w.Width != 4 {
		t.Errorf("Width = %d, want 4", w.Width)
	}
	if len(w.Classes[0]) != 0 {
		t.Errorf("class 0 has %d values, want 0", len(w.Classes[0]))
	}
	// Stored normalised: (3,4) -> (0.6, 0.8).
	if math.Abs(w.Classes[1][0]-0.6) > 1e-9 || math.Abs(w.Classes[1][1]-0.8) > 1e-9 {
		t.Errorf("class 1 not normalised: %v", w.Classes[1])
	}

	restored := New(3, 5, 4)
	if err := restored.SetWeights(w); err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}
	got := restored.Counts()
	if got[0] != 0 || got[1] != 1 || got[2] != 1 {
		t.Errorf("Counts() = %v, want [0 1 1]", got)
	}
}

func TestClassifier_SetWeights_Reshape(t *testing.T) {
	const width = 1000
	flat := make([]float64, width)
	for i := range flat {
		flat[i] = float64(i + 1)
	}

	c := New(3, 5, width)
	err := c.SetWeights(Weights{Width: width, Classes: [][]float64{{}, flat, {}}})
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}

	counts := c.Counts()
	if counts[0] != 0 || counts[1] != 1 || counts[2] != 0 {
		t.Errorf("Counts() = %v, want [0 1 0]", counts)
	}
}

func TestClassifier_SetWeights_NormalisesRows(t *testing.T) {
	c := New(2, 1, 2)
	if err := c.SetWeights(Weights{Width: 2, Classes: [][]float64{{1, 0}, {100, 100}}}); err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}

	p, err := c.Predict([]float64{1, 0})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if p.Class != 0 {
		t.Errorf("Class = %d, want 0 for a query identical to the short class 0 row", p.Class)
	}

	w := c.Weights()
	want := 1 / math.Sqrt2
	if math.Abs(w.Classes[1][0]-want) > 1e-9 || math.Abs(w.Classes[1][1]-want) > 1e-9 {
		t.Errorf("class 1 row = %v, want unit length", w.Classes[1])
	}
}

func TestClassifier_SetWeights_Rejected(t *testing.T) {
	c := New(3, 5, 4)
	c.AddSample(basis(4, 0), 0)

	tests := []struct {
		name    string
		weights Weights
		wantErr error
	}{
		{"wrong width", Weights{Width: 8, Classes: [][]float64{{}}}, ErrWidthMismatch},
		{"ragged class", Weights{Width: 4, Classes: [][]float64{{1, 2, 3}}}, ErrWidthMismatch},
		{"too many classes", Weights{Width: 4, Classes: [][]float64{{}, {}, {}, {}}}, ErrClassOutOfRange},
		{"zero row", Weights{Width: 4, Classes: [][]float64{{}, {1, 0, 0, 0, 0, 0, 0, 0}}}, ErrZeroVector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.SetWeights(tt.weights); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if c.ClassCount(0) != 1 {
				t.Error("rejected SetWeights should leave the classifier unchanged")
			}
		})
	}
}

func TestWeights_UnmarshalJSON(t *testing.T) {
	t.Run("versioned object", func(t *testing.T) {
		var w Weights
		if err := json.Unmarshal([]byte(`{"width":2,"classes":[[],[1,0],[]]}`), &w); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if w.Width != 2 || w.Rows(1) != 1 {
			t.Errorf("got width %d rows %d, want 2 and 1", w.Width, w.Rows(1))
		}
	})

	t.Run("bare array", func(t *testing.T) {
		var w Weights
		if err := json.Unmarshal([]byte(`[[],[1,0],[]]`), &w); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if w.Width != 0 {
			t.Errorf("Width = %d, want 0 for bare form", w.Width)
		}
		if len(w.Classes) != 3 || len(w.Classes[1]) != 2 {
			t.Errorf("Classes = %v", w.Classes)
		}
	})
}
