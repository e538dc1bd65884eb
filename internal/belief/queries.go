package belief

import "pti/dm/internal/ontology"

// Slots maps slot names to the distribution a query selected.
type Slots map[string]Hypothesis

// Names returns the keys in sorted order.
func (s Slots) Names() []string { return sortedKeys(s) }

// Has reports membership.
func (s Slots) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func concrete(v string) bool { return v != ontology.None && v != "" }

// SlotsBeingRequested returns slots the user asks for, mapped to their current
// value belief.
func (s *State) SlotsBeingRequested(th float64) Slots {
	out := Slots{}
	for _, name := range s.names {
		sl := s.slots[name]
		if sl.Requested.Prob(UserRequested) >= th {
			out[name] = sl.Value
		}
	}
	return out
}

// SlotsBeingConfirmed returns slots the user asks to confirm, mapped to the
// distribution of values the user proposed.
func (s *State) SlotsBeingConfirmed(th float64) Slots {
	out := Slots{}
	for _, name := range s.names {
		sl := s.slots[name]
		if p := sl.Confirmed.MPH(); concrete(p.Value) && p.Prob >= th {
			out[name] = sl.Confirmed
		}
	}
	return out
}

// SlotsBeingNoninformed returns accepted slots the system has not yet
// informed or implicitly confirmed.
func (s *State) SlotsBeingNoninformed(th float64) Slots {
	out := Slots{}
	for _, name := range s.names {
		if !s.ont.HasAttr(name, ontology.AttrSystemIconfirms) {
			continue
		}
		sl := s.slots[name]
		p := sl.Value.MPH()
		if concrete(p.Value) && p.Prob >= th && sl.SystemInformed != p.Value {
			out[name] = sl.Value
		}
	}
	return out
}

// AcceptedSlots returns slots whose most probable value is not none and holds
// at least th.
func (s *State) AcceptedSlots(th float64) Slots {
	out := Slots{}
	for _, name := range s.names {
		sl := s.slots[name]
		if p := sl.Value.MPH(); concrete(p.Value) && p.Prob >= th {
			out[name] = sl.Value
		}
	}
	return out
}

// SlotsToBeConfirmed returns system-confirmable slots whose most probable
// value lies in [confirmTh, acceptTh).
func (s *State) SlotsToBeConfirmed(confirmTh, acceptTh float64) Slots {
	out := Slots{}
	for _, name := range s.ont.SlotsSystemConfirms() {
		sl := s.slots[name]
		if sl == nil {
			continue
		}
		p := sl.Value.MPH()
		if concrete(p.Value) && p.Value != ontology.DontCare && p.Prob >= confirmTh && p.Prob < acceptTh {
			out[name] = sl.Value
		}
	}
	return out
}

// SlotsToBeSelected returns system-selectable slots whose two most probable
// values are both concrete and the runner-up holds at least selectTh.
func (s *State) SlotsToBeSelected(selectTh float64) Slots {
	out := Slots{}
	for _, name := range s.ont.SlotsSystemSelects() {
		sl := s.slots[name]
		if sl == nil {
			continue
		}
		a, b := sl.Value.TMPHs()
		if concrete(a.Value) && concrete(b.Value) && a.Value != ontology.DontCare &&
			b.Value != ontology.DontCare && b.Prob >= selectTh {
			out[name] = sl.Value
		}
	}
	return out
}

// ChangedSlots returns slots whose most probable value changed this turn
// and now holds at least th.
func (s *State) ChangedSlots(th float64) Slots {
	out := Slots{}
	for name := range s.changed {
		sl := s.slots[name]
		if p := sl.Value.MPH(); concrete(p.Value) && p.Prob >= th {
			out[name] = sl.Value
		}
	}
	return out
}

// StateChanged reports whether any distribution moved by more than th
// during the last turn.
func (s *State) StateChanged(th float64) bool { return s.moved > th }

// LastUserDAType is ludait's most probable value when it holds th, else none.
func (s *State) LastUserDAType(th float64) string {
	p := s.LUDAIT.MPH()
	if p.Prob >= th {
		return p.Value
	}
	return ontology.None
}
