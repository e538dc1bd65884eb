// Package hub exposes dialogues to clients. A Hub opens dialogues through a
// manager.Factory, keeps them in a store.Store and serves them over gRPC,
// HTTP and websocket.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"pti/dm/internal/dialogueact"
	"pti/dm/internal/manager"
	"pti/dm/internal/store"
)

// ErrBadInput is returned when a turn carries no parseable fact.
var ErrBadInput = errors.New("hub: unparseable confusion network")

// Reply is the system side of one turn.
type Reply struct {
	DialogueID string `json:"dialogue_id"`
	Turn       int    `json:"turn"`
	SystemAct  string `json:"system_act"`
}

type Hub struct {
	factory  *manager.Factory
	store    *store.Store
	log      *zap.Logger
	draining atomic.Bool
}

func New(f *manager.Factory, st *store.Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{factory: f, store: st, log: log.Named("hub")}
}

// Open starts a dialogue and returns the greeting.
func (h *Hub) Open(ctx context.Context) (Reply, error) {
	d, err := h.factory.Open()
	if err != nil {
		return Reply{}, err
	}
	if err := h.store.Add(d); err != nil {
		_ = d.Close()
		return Reply{}, err
	}
	h.store.AppendEvent(d.ID, "dialogue_opened", map[string]any{"session_dir": d.SessionDir()})
	return h.turn(ctx, d, nil)
}

// Turn parses text as a confusion network and runs one turn of dialogue id.
// Facts that fail to parse are dropped; a non-empty text with no parseable
// fact is rejected with ErrBadInput.
func (h *Hub) Turn(ctx context.Context, id, text string) (Reply, error) {
	d, err := h.store.Get(id)
	if err != nil {
		return Reply{}, err
	}
	cn, errs := dialogueact.ParseConfusionNetwork(text)
	if len(errs) > 0 {
		if cn.Len() == 0 && strings.TrimSpace(text) != "" {
			h.store.AppendEvent(id, "turn_rejected", map[string]any{"error": errs[0].Error()})
			return Reply{}, fmt.Errorf("%w: %v", ErrBadInput, errs[0])
		}
		for _, e := range errs {
			h.log.Debug("dropped fact", zap.String("dialogue_id", id), zap.Error(e))
		}
	}
	return h.turn(ctx, d, cn)
}

func (h *Hub) turn(ctx context.Context, d *manager.Dialogue, cn *dialogueact.ConfusionNetwork) (Reply, error) {
	da, err := d.Turn(ctx, cn)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{DialogueID: d.ID, Turn: d.TurnCount(), SystemAct: da.String()}
	user := ""
	if cn != nil {
		user = cn.String()
	}
	h.store.AppendEvent(d.ID, "turn", map[string]any{"turn": r.Turn, "user": user, "system": r.SystemAct})
	return r, nil
}

// Close ends dialogue id.
func (h *Hub) Close(id string) error {
	d, err := h.store.Remove(id)
	if err != nil {
		return err
	}
	return d.Close()
}

// Events lists what happened in an open dialogue.
func (h *Hub) Events(id string) ([]store.Event, error) { return h.store.ListEvents(id) }

// Ready is false once Shutdown has begun.
func (h *Hub) Ready() bool { return !h.draining.Load() }

// Shutdown closes every open dialogue.
func (h *Hub) Shutdown() {
	h.draining.Store(true)
	for _, id := range h.store.IDs() {
		if err := h.Close(id); err != nil && !errors.Is(err, store.ErrDialogueNotFound) {
			h.log.Warn("close dialogue", zap.String("dialogue_id", id), zap.Error(err))
		}
	}
}
