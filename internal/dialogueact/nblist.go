package dialogueact

import (
	"fmt"
	"sort"
	"strings"
)

const massTolerance = 1e-2

// Hyp is one N-best entry.
type Hyp struct {
	Prob float64
	Act  DialogueAct
}

// NBList is an N-best list of dialogue act hypotheses kept in descending
// probability order.
type NBList struct {
	hyps []Hyp
}

// Add inserts a hypothesis. An act equal to an existing one (ignoring order)
// accumulates probability.
func (l *NBList) Add(p float64, da DialogueAct) {
	key := da.Key()
	for i := range l.hyps {
		if l.hyps[i].Act.Key() == key {
			l.hyps[i].Prob += p
			l.sort()
			return
		}
	}
	l.hyps = append(l.hyps, Hyp{Prob: p, Act: da.Sort()})
	l.sort()
}

// Merge collapses duplicate acts by summing their probabilities.
func (l *NBList) Merge() {
	idx := make(map[string]int, len(l.hyps))
	out := l.hyps[:0]
	for _, h := range l.hyps {
		k := h.Act.Key()
		if i, ok := idx[k]; ok {
			out[i].Prob += h.Prob
			continue
		}
		idx[k] = len(out)
		out = append(out, h)
	}
	l.hyps = out
	l.sort()
}

// Scale divides all probabilities by the total when the total exceeds one.
func (l *NBList) Scale() {
	total := l.Total()
	if total <= 1 {
		return
	}
	for i := range l.hyps {
		l.hyps[i].Prob /= total
	}
}

// Normalize scales probabilities to sum to one.
func (l *NBList) Normalize() {
	total := l.Total()
	if total == 0 {
		return
	}
	for i := range l.hyps {
		l.hyps[i].Prob /= total
	}
}

// AddOther assigns the unallocated mass to an other() hypothesis.
func (l *NBList) AddOther() error {
	total := l.Total()
	switch {
	case total > 1+massTolerance:
		return fmt.Errorf("dialogueact: n-best mass %.3f exceeds 1", total)
	case total < 1-massTolerance:
		l.Add(1-total, DialogueAct{{DAT: "other"}})
	}
	return nil
}

// Total is the sum of all hypothesis probabilities.
func (l *NBList) Total() float64 {
	var t float64
	for _, h := range l.hyps {
		t += h.Prob
	}
	return t
}

// Hyps returns a copy of the hypotheses in descending order.
func (l *NBList) Hyps() []Hyp {
	return append([]Hyp(nil), l.hyps...)
}

func (l *NBList) Len() int { return len(l.hyps) }

// Best returns the most probable hypothesis; an empty list yields null().
func (l *NBList) Best() Hyp {
	if len(l.hyps) == 0 {
		return Hyp{Prob: 1, Act: DialogueAct{{DAT: "null"}}}
	}
	return l.hyps[0]
}

// ConfusionNetwork marginalizes the list into per-item probabilities.
func (l *NBList) ConfusionNetwork() *ConfusionNetwork {
	cn := &ConfusionNetwork{}
	for _, h := range l.hyps {
		for _, it := range h.Act {
			cn.Add(h.Prob, it)
		}
	}
	cn.Sort()
	return cn
}

func (l *NBList) String() string {
	var b strings.Builder
	for _, h := range l.hyps {
		fmt.Fprintf(&b, "%.3f %s\n", h.Prob, h.Act)
	}
	return b.String()
}

func (l *NBList) sort() {
	sort.SliceStable(l.hyps, func(i, j int) bool { return l.hyps[i].Prob > l.hyps[j].Prob })
}
