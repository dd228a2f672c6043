// Package api provides the HTTP handlers through which the operator and
// browser pages drive the control loop.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/camscroll/internal/control"
)

// LoopStatus reports the control loop state.
type LoopStatus interface {
	Status() control.Status
}

// TrainingPanel is the operator panel as seen by the API.
type TrainingPanel interface {
	StartTraining(ctx context.Context) error
	SetInfer(ctx context.Context, on bool) error
	Inferring() (bool, error)
	Status() string
	Running() bool
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
