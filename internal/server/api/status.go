package api

import (
	"net/http"

	"github.com/ayusman/camscroll/internal/control"
)

// StatusResponse combines loop and panel state.
type StatusResponse struct {
	control.Status
	Training       bool   `json:"training"`
	TrainingStatus string `json:"training_status"`
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	loop  LoopStatus
	panel TrainingPanel
}

// NewStatusHandler creates a status handler. Either source may be nil.
func NewStatusHandler(loop LoopStatus, panel TrainingPanel) *StatusHandler {
	return &StatusHandler{loop: loop, panel: panel}
}

// Snapshot assembles the current status.
func (h *StatusHandler) Snapshot() StatusResponse {
	var resp StatusResponse
	if h.loop != nil {
		resp.Status = h.loop.Status()
	}
	if h.panel != nil {
		resp.Training = h.panel.Running()
		resp.TrainingStatus = h.panel.Status()
	}
	return resp
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}
