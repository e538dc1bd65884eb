package hub

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type wsMessage struct {
	Type  string `json:"type"`
	Reply *Reply `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// registry keeps at most one connection per dialogue.
type registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func newRegistry() *registry { return &registry{conns: make(map[string]*ws.Conn)} }

// replace sets the connection for a dialogue and closes the previous one.
func (r *registry) replace(id string, c *ws.Conn) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[id]; ok && old != nil {
		_ = old.Close(ws.StatusPolicyViolation, "replaced")
		replaced = true
	}
	r.conns[id] = c
	return
}

// remove forgets c if it is still the connection of id.
func (r *registry) remove(id string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[id] == c {
		delete(r.conns, id)
	}
}

type wsServer struct {
	hub *Hub
	reg *registry
}

// ServeHTTP runs a dialogue over a websocket. Without ?dialogue_id a new
// dialogue is opened, greeted and closed when the socket goes away. Each
// client frame is {"user": "<confusion network>"}; each reply is a wsMessage.
func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("dialogue_id")
	if id != "" {
		if _, err := s.hub.store.Get(id); err != nil {
			http.Error(w, "unknown dialogue", http.StatusNotFound)
			return
		}
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.hub.log.Warn("ws accept", zap.Error(err))
		return
	}
	ctx := r.Context()

	owned := id == ""
	if owned {
		reply, err := s.hub.Open(ctx)
		if err != nil {
			_ = wsjson.Write(ctx, c, wsMessage{Type: "error", Error: err.Error()})
			_ = c.Close(ws.StatusInternalError, "open failed")
			return
		}
		id = reply.DialogueID
		if err := wsjson.Write(ctx, c, wsMessage{Type: "reply", Reply: &reply}); err != nil {
			_ = s.hub.Close(id)
			return
		}
	}
	if s.reg.replace(id, c) {
		s.hub.store.AppendEvent(id, "ws_replaced", nil)
	}
	s.hub.store.AppendEvent(id, "ws_connected", nil)

	for {
		var req turnRequest
		if err := wsjson.Read(ctx, c, &req); err != nil {
			break
		}
		reply, err := s.hub.Turn(ctx, id, req.User)
		msg := wsMessage{Type: "reply", Reply: &reply}
		if err != nil {
			msg = wsMessage{Type: "error", Error: err.Error()}
		}
		if err := wsjson.Write(ctx, c, msg); err != nil {
			break
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.reg.remove(id, c)
	s.hub.store.AppendEvent(id, "ws_disconnected", nil)
	if owned {
		if err := s.hub.Close(id); err != nil {
			s.hub.log.Debug("close ws dialogue", zap.String("dialogue_id", id), zap.Error(err))
		}
	}
}
