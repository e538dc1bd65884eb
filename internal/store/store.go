// Package store keeps the open dialogues of a process and their turn events.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"pti/dm/internal/manager"
	"pti/dm/internal/metrics"
)

var (
	ErrDialogueNotFound = errors.New("dialogue not found")
	ErrDialogueExists   = errors.New("dialogue already exists")
)

// Event is something that happened in a dialogue.
type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// MaxEvents bounds the events kept per dialogue.
const MaxEvents = 200

type Store struct {
	mu        sync.RWMutex
	dialogues map[string]*manager.Dialogue
	events    map[string][]Event
}

func New() *Store {
	return &Store{
		dialogues: make(map[string]*manager.Dialogue),
		events:    make(map[string][]Event),
	}
}

func (s *Store) Add(d *manager.Dialogue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogues[d.ID]; ok {
		return ErrDialogueExists
	}
	s.dialogues[d.ID] = d
	s.events[d.ID] = []Event{}
	metrics.OpenDialogues.Inc()
	return nil
}

func (s *Store) Get(id string) (*manager.Dialogue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogues[id]
	if !ok {
		return nil, ErrDialogueNotFound
	}
	return d, nil
}

// Remove forgets a dialogue and its events and returns it.
func (s *Store) Remove(id string) (*manager.Dialogue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogues[id]
	if !ok {
		return nil, ErrDialogueNotFound
	}
	delete(s.dialogues, id)
	delete(s.events, id)
	metrics.OpenDialogues.Dec()
	return d, nil
}

// AppendEvent records an event for an open dialogue; events for unknown
// dialogues are dropped.
func (s *Store) AppendEvent(id, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogues[id]; !ok {
		return evt
	}
	s.events[id] = append(s.events[id], evt)
	if l := len(s.events[id]); l > MaxEvents {
		// keep room for the truncation marker
		keep := MaxEvents - 1
		dropped := l - keep
		s.events[id] = append([]Event(nil), s.events[id][l-keep:]...)
		warn := Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"dialogue_id": id, "dropped": dropped, "kept": keep}}
		s.events[id] = append(s.events[id], warn)
	}
	return evt
}

func (s *Store) ListEvents(id string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.events[id]
	if !ok {
		return nil, ErrDialogueNotFound
	}
	out := make([]Event, len(src))
	copy(out, src)
	return out, nil
}

// IDs lists the open dialogues in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dialogues))
	for id := range s.dialogues {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
