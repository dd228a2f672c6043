package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/protocol"
)

// maxCommandBytes bounds a command body.
const maxCommandBytes = 4 << 10

// CommandsHandler queues commands for the control loop.
type CommandsHandler struct {
	sender msgbus.Sender[protocol.Command]
	logger *zap.Logger
}

// NewCommandsHandler creates a handler sending to sender.
func NewCommandsHandler(sender msgbus.Sender[protocol.Command], logger *zap.Logger) *CommandsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandsHandler{sender: sender, logger: logger}
}

// ServeHTTP handles POST /api/commands. The command is queued, not applied:
// 202 means it was accepted for delivery, 503 that it was dropped.
func (h *CommandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	cmd, err := protocol.DecodeCommand(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sender.Send(cmd); err != nil {
		if errors.Is(err, msgbus.ErrDropped) {
			h.logger.Warn("command dropped", zap.Stringer("cmd", cmd))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"queued": cmd.String()})
}
