package belief

import (
	"sort"

	"pti/dm/internal/directions"
	"pti/dm/internal/ontology"
)

// Shadow history values.
const (
	UserRequested = "user-requested"
	Contradicted  = "true"
)

// Slot is the belief about one ontology slot together with its shadow
// histories.
type Slot struct {
	Name  string
	Value Hypothesis
	// Requested holds UserRequested mass while the user asks for the slot.
	Requested *Categorical
	// Confirmed holds the values the user asks to have confirmed.
	Confirmed *Categorical
	// Change holds Contradicted mass when a confirmation disagrees with Value.
	Change *Categorical
	// SystemInformed is the last value the system informed or iconfirmed.
	SystemInformed string

	prevMPV string
	prev    []map[string]float64
}

func newSlot(ont *ontology.Ontology, name string) *Slot {
	return &Slot{
		Name:           name,
		Value:          NewHypothesis(ont, name),
		Requested:      NewCategorical(),
		Confirmed:      NewCategorical(),
		Change:         NewCategorical(),
		SystemInformed: ontology.None,
		prevMPV:        ontology.None,
	}
}

func (s *Slot) dists() []map[string]float64 {
	return []map[string]float64{
		distOf(s.Value), s.Requested.clone().dist, s.Confirmed.clone().dist, s.Change.clone().dist,
	}
}

func distOf(h Hypothesis) map[string]float64 {
	out := map[string]float64{}
	for _, p := range h.Pairs() {
		out[p.Value] = p.Prob
	}
	return out
}

// State is the belief of one dialogue. It is not safe for concurrent use; a
// dialogue processes one turn at a time.
type State struct {
	ont   *ontology.Ontology
	slots map[string]*Slot
	names []string

	// LUDAIT is the distribution over the last user dialogue act type.
	LUDAIT *Categorical

	// Directions and ConnInfo are replaced together by the policy.
	Directions *directions.Directions
	ConnInfo   *directions.ConnInfo

	// Turn counts processed user turns.
	Turn int
	// Silence accumulates while the user stays silent.
	Silence float64

	routeAlternative int
	hasRoute         bool
	prevLUDAIT       map[string]float64
	changed          map[string]bool
	moved            float64
}

// NewState creates a belief with every ontology slot at its initial
// distribution.
func NewState(ont *ontology.Ontology) *State {
	s := &State{ont: ont}
	s.init()
	return s
}

func (s *State) init() {
	s.slots = make(map[string]*Slot)
	s.names = s.names[:0]
	for _, name := range s.ont.Slots() {
		if s.ont.HasAttr(name, ontology.AttrStateVariable) {
			continue
		}
		s.slots[name] = newSlot(s.ont, name)
		s.names = append(s.names, name)
	}
	s.LUDAIT = NewCategorical()
	s.Directions = nil
	s.ConnInfo = nil
	s.Silence = 0
	s.routeAlternative = 0
	s.hasRoute = false
	s.prevLUDAIT = nil
	s.changed = map[string]bool{}
	s.moved = 0
}

// Restart wipes the belief but keeps the turn counter.
func (s *State) Restart() {
	turn := s.Turn
	s.init()
	s.Turn = turn
}

// Ontology returns the schema this belief is built on.
func (s *State) Ontology() *ontology.Ontology { return s.ont }

// Slot returns the record for name, nil when the ontology lacks it.
func (s *State) Slot(name string) *Slot { return s.slots[name] }

// Names lists the tracked slots in sorted order.
func (s *State) Names() []string { return append([]string(nil), s.names...) }

// MPV is the most probable value of a slot, none for unknown slots.
func (s *State) MPV(name string) string {
	if sl := s.slots[name]; sl != nil {
		return sl.Value.MPV()
	}
	return ontology.None
}

// RouteAlternative returns the selected route index and whether one exists.
func (s *State) RouteAlternative() (int, bool) { return s.routeAlternative, s.hasRoute }

// SetRouteAlternative selects route i.
func (s *State) SetRouteAlternative(i int) {
	s.routeAlternative = i
	s.hasRoute = true
}

// ClearRouteAlternative removes the selection.
func (s *State) ClearRouteAlternative() {
	s.routeAlternative = 0
	s.hasRoute = false
}

// SetDirections replaces directions and the query that produced them and
// selects the first route, or clears the selection when there is none.
func (s *State) SetDirections(d *directions.Directions, conn directions.ConnInfo) {
	s.Directions = d
	s.ConnInfo = &conn
	if d.Len() > 0 {
		s.SetRouteAlternative(0)
	} else {
		s.ClearRouteAlternative()
	}
}

// ResetVariable resets a slot or state variable to its initial value.
func (s *State) ResetVariable(name string) {
	if name == "route_alternative" {
		if s.hasRoute {
			s.routeAlternative = 0
		}
		return
	}
	if sl := s.slots[name]; sl != nil {
		sl.Value.Reset()
	}
}

// BeginTurn snapshots every distribution so the turn's changes can be
// measured.
func (s *State) BeginTurn() {
	for _, sl := range s.slots {
		sl.prevMPV = sl.Value.MPV()
		sl.prev = sl.dists()
	}
	s.prevLUDAIT = s.LUDAIT.clone().dist
}

// EndTurn records which slots changed and how far the belief moved.
func (s *State) EndTurn() {
	s.changed = map[string]bool{}
	s.moved = 0
	for name, sl := range s.slots {
		if sl.Value.MPV() != sl.prevMPV {
			s.changed[name] = true
		}
		cur := sl.dists()
		for i := range cur {
			var before map[string]float64
			if i < len(sl.prev) {
				before = sl.prev[i]
			}
			if d := maxDelta(before, cur[i]); d > s.moved {
				s.moved = d
			}
		}
	}
	if d := maxDelta(s.prevLUDAIT, s.LUDAIT.dist); d > s.moved {
		s.moved = d
	}
}

// MPVChanged reports whether name's mpv differs from the one at BeginTurn.
func (s *State) MPVChanged(name string) bool {
	sl := s.slots[name]
	return sl != nil && sl.Value.MPV() != sl.prevMPV
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
