package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/actuator"
	"github.com/ayusman/camscroll/internal/gesture"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PageFrame is sent to and received from browser pages.
type PageFrame struct {
	Type      string `json:"type"`
	Dy        int    `json:"dy,omitempty"`
	Direction string `json:"direction,omitempty"`
	Visible   bool   `json:"visible,omitempty"`
}

// Frame types.
const (
	FrameScroll    = "scroll"
	FrameIndicator = "indicator"
	// FrameFocus is sent by a page when its tab becomes active.
	FrameFocus = "focus"
)

type pageConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *pageConn) write(frame PageFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// PageHub tracks connected browser pages and forwards scroll and indicator
// frames to the active one. It implements actuator.Page.
type PageHub struct {
	logger *zap.Logger

	mu     sync.Mutex
	pages  []*pageConn
	active *pageConn
}

var _ actuator.Page = (*PageHub)(nil)

// NewPageHub creates an empty hub.
func NewPageHub(logger *zap.Logger) *PageHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHub{logger: logger.Named("pages")}
}

// ServeHTTP upgrades a page connection. The newest page, or the last one
// to report focus, is the active page.
func (h *PageHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	page := &pageConn{id: uuid.New().String(), conn: conn}
	h.add(page)
	defer h.remove(page)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame PageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Debug("ignoring malformed frame", zap.String("page", page.id), zap.Error(err))
			continue
		}
		if frame.Type == FrameFocus {
			h.mu.Lock()
			h.active = page
			h.mu.Unlock()
			h.logger.Debug("page focused", zap.String("page", page.id))
		}
	}
}

func (h *PageHub) add(p *pageConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages = append(h.pages, p)
	h.active = p
	h.logger.Info("page connected", zap.String("page", p.id), zap.Int("pages", len(h.pages)))
}

func (h *PageHub) remove(p *pageConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, q := range h.pages {
		if q == p {
			h.pages = append(h.pages[:i], h.pages[i+1:]...)
			break
		}
	}
	if h.active == p {
		h.active = nil
		if n := len(h.pages); n > 0 {
			h.active = h.pages[n-1]
		}
	}
	h.logger.Info("page disconnected", zap.String("page", p.id), zap.Int("pages", len(h.pages)))
}

// Count returns the number of connected pages.
func (h *PageHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pages)
}

func (h *PageHub) send(frame PageFrame) error {
	h.mu.Lock()
	page := h.active
	h.mu.Unlock()

	if page == nil {
		return actuator.ErrNoPage
	}
	return page.write(frame)
}

// ScrollBy tells the active page to scroll by dy pixels.
func (h *PageHub) ScrollBy(dy int) error {
	return h.send(PageFrame{Type: FrameScroll, Dy: dy})
}

// SetIndicator tells the active page to show or hide a direction indicator.
func (h *PageHub) SetIndicator(d gesture.Direction, visible bool) error {
	return h.send(PageFrame{Type: FrameIndicator, Direction: string(d), Visible: visible})
}
