package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/camscroll/internal/panel"
)

// TrainingHandler starts the training script.
type TrainingHandler struct {
	panel TrainingPanel
	// ctx bounds the script; it outlives the request that started it.
	ctx context.Context
}

// NewTrainingHandler creates a handler. Scripts it starts run until ctx is
// done or they complete.
func NewTrainingHandler(ctx context.Context, p TrainingPanel) *TrainingHandler {
	return &TrainingHandler{panel: p, ctx: ctx}
}

// ServeHTTP handles POST /api/training.
func (h *TrainingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.panel.StartTraining(h.ctx); err != nil {
		if errors.Is(err, panel.ErrTrainingRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"training": true})
}

type inferRequest struct {
	Infer *bool `json:"infer"`
}

type inferResponse struct {
	Infer bool `json:"infer"`
}

// InferHandler reads and sets the inference toggle.
type InferHandler struct {
	panel TrainingPanel
}

// NewInferHandler creates a handler.
func NewInferHandler(p TrainingPanel) *InferHandler {
	return &InferHandler{panel: p}
}

// ServeHTTP handles GET and PUT /api/infer.
func (h *InferHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		on, err := h.panel.Inferring()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, inferResponse{Infer: on})

	case http.MethodPut:
		var req inferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Infer == nil {
			writeError(w, http.StatusBadRequest, "infer is required")
			return
		}
		if err := h.panel.SetInfer(r.Context(), *req.Infer); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, inferResponse{Infer: *req.Infer})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
