package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pti/dm/internal/manager"
	"pti/dm/internal/store"
)

type turnRequest struct {
	User string `json:"user"`
}

// NewRouter serves the HTTP API:
//
//	POST /dialogues                 open a dialogue
//	POST /dialogues/{id}/turns      run a turn, body {"user": "<confusion network>"}
//	GET  /dialogues/{id}/events     list dialogue events
//	POST /dialogues/{id}/close      close the dialogue
//	GET  /ws/dialogue               websocket turn stream
func NewRouter(h *Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !h.Ready() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws/dialogue", &wsServer{hub: h, reg: newRegistry()})

	mux.HandleFunc("/dialogues", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reply, err := h.Open(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	})

	mux.HandleFunc("/dialogues/", func(w http.ResponseWriter, r *http.Request) {
		// /dialogues/{id}/turns | /events | /close
		path := strings.TrimSuffix(r.URL.Path, "/")
		rest := strings.TrimPrefix(path, "/dialogues/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id, tail := parts[0], parts[1]

		switch tail {
		case "turns":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req turnRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
				return
			}
			reply, err := h.Turn(r.Context(), id, req.User)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, reply)
		case "events":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			events, err := h.Events(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"dialogue_id": id, "events": events})
		case "close":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if err := h.Close(id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"dialogue_id": id, "closed": true})
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrDialogueNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadInput):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]any{"error": err.Error()})
}
