package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
)

// wsHub fans scheduler pulse events out to every connected admin
// dashboard socket. The ledger pulse write remains the source of truth
// other relay peers read; the socket is a live convenience on top of it.
type wsHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newWsHub() *wsHub {
	return &wsHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *wsHub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *wsHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	c.Close()
}

func (h *wsHub) broadcast(msg interface{}) {
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
			delete(h.conns, c)
			c.Close()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS upgrades an admin-authenticated request to a WebSocket and
// streams broadcast events until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if principalFrom(r).Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "ws-admin-only", "the pulse socket requires admin auth"), nil, "")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithField("error", err).Warn("httpapi: websocket upgrade failed")
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
