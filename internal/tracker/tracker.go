// Package tracker folds user confusion networks and system acts into the
// belief state, one turn at a time.
package tracker

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"pti/dm/internal/belief"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/ontology"
)

// Tracker is stateless across dialogues; all state lives in belief.State.
type Tracker struct {
	ont        *ontology.Ontology
	acceptProb float64
	log        *zap.Logger
}

// New returns a tracker. acceptProb gates reset-on-change.
func New(ont *ontology.Ontology, acceptProb float64, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{ont: ont, acceptProb: acceptProb, log: log.Named("tracker")}
}

// ludaitTypes are the user dialogue act types tracked in ludait.
var ludaitTypes = map[string]bool{
	"hello": true, "bye": true, "silence": true, "null": true, "other": true, "help": true,
	"thankyou": true, "restart": true, "repeat": true, "reqalts": true, "affirm": true, "negate": true,
}

type observations map[string]map[string]float64

func (o observations) add(slot, value string, p float64) {
	if o[slot] == nil {
		o[slot] = map[string]float64{}
	}
	if p > o[slot][value] {
		o[slot][value] = p
	}
}

// Update applies one user turn. systemActs is the dialogue's system act
// history, oldest first.
func (t *Tracker) Update(bs *belief.State, cn *dialogueact.ConfusionNetwork, systemActs []dialogueact.DialogueAct) {
	bs.BeginTurn()

	if n := len(systemActs); n > 0 {
		t.noteSystemAct(bs, systemActs[n-1])
	}
	facts := t.resolveContext(cn, contextAct(systemActs)).Facts()

	var (
		values    = observations{}
		requested = observations{}
		confirmed = observations{}
		changes   = observations{}
		ludait    = map[string]float64{}
		denies    []dialogueact.Fact
	)
	for _, f := range facts {
		it := f.Item
		if ludaitTypes[it.DAT] && f.Prob > ludait[it.DAT] {
			ludait[it.DAT] = f.Prob
		}
		if it.Name == "" {
			continue
		}
		sl := bs.Slot(it.Name)
		if sl == nil {
			t.log.Debug("dropping item for unknown slot", zap.String("item", it.String()))
			continue
		}
		switch it.DAT {
		case "inform":
			if !t.ont.HasValue(it.Name, it.Value) {
				t.log.Debug("dropping value outside the ontology", zap.String("item", it.String()))
				continue
			}
			values.add(it.Name, it.Value, f.Prob)
		case "deny":
			denies = append(denies, f)
		case "request":
			if t.ont.HasAttr(it.Name, ontology.AttrUserRequests) {
				requested.add(it.Name, belief.UserRequested, f.Prob)
			}
		case "confirm":
			if !t.ont.HasAttr(it.Name, ontology.AttrUserConfirms) || !t.ont.HasValue(it.Name, it.Value) {
				continue
			}
			confirmed.add(it.Name, it.Value, f.Prob)
			if it.Value != sl.Value.MPV() {
				changes.add(it.Name, belief.Contradicted, f.Prob)
			}
		}
	}
	if len(facts) == 0 {
		ludait["null"] = 1
	}

	for _, name := range bs.Names() {
		sl := bs.Slot(name)
		sl.Value.Update(values[name])
		sl.Requested.Update(requested[name])
		sl.Confirmed.Update(confirmed[name])
		sl.Change.Update(changes[name])
	}
	for _, f := range denies {
		bs.Slot(f.Item.Name).Value.Remove(f.Item.Value, f.Prob)
	}
	bs.LUDAIT.Update(ludait)

	t.resetOnChange(bs)
	t.lastTalkedAbout(bs, facts)

	bs.Turn++
	t.updateSilence(bs, cn)
	bs.EndTurn()
}

// noteSystemAct records the values the system has informed or implicitly
// confirmed, which makes them no longer "noninformed".
func (t *Tracker) noteSystemAct(bs *belief.State, da dialogueact.DialogueAct) {
	for _, it := range da {
		if it.DAT != "inform" && it.DAT != "iconfirm" {
			continue
		}
		if sl := bs.Slot(it.Name); sl != nil && it.Value != "" {
			sl.SystemInformed = it.Value
		}
	}
}

// contextAct is the last system act that was not pure silence.
func contextAct(acts []dialogueact.DialogueAct) dialogueact.DialogueAct {
	for i := len(acts) - 1; i >= 0; i-- {
		if !acts[i].HasOnlyDAT("silence") {
			return acts[i]
		}
	}
	return nil
}

// resolveContext returns a copy of cn extended with items whose meaning
// depends on what the system just asked.
func (t *Tracker) resolveContext(cn *dialogueact.ConfusionNetwork, sys dialogueact.DialogueAct) *dialogueact.ConfusionNetwork {
	out := &dialogueact.ConfusionNetwork{}
	facts := cn.Facts()
	for _, f := range facts {
		out.AddMerge(f.Prob, f.Item, dialogueact.CombineMax)
	}
	if len(sys) == 0 {
		return out
	}

	asked := map[string]bool{}
	var requests []string
	var confirms []dialogueact.Item
	for _, it := range sys {
		switch it.DAT {
		case "request":
			requests = append(requests, it.Name)
			asked[it.Name] = true
		case "confirm":
			confirms = append(confirms, it)
			asked[it.Name] = true
		case "select":
			asked[it.Name] = true
		}
	}

	for _, f := range facts {
		it := f.Item
		switch it.DAT {
		case "inform", "request", "confirm", "deny":
			for _, q := range t.ont.ContextResolution(it.Name) {
				if asked[q] {
					out.AddMerge(f.Prob, dialogueact.NewItem(it.DAT, q, it.Value), dialogueact.CombineMax)
				}
			}
			if it.DAT == "inform" && it.Name == "" && it.Value != "" {
				for _, q := range requests {
					if q != "" && t.ont.HasValue(q, it.Value) {
						out.AddMerge(f.Prob, dialogueact.NewItem("inform", q, it.Value), dialogueact.CombineMax)
					}
				}
			}
		case "affirm":
			for _, c := range confirms {
				out.AddMerge(f.Prob, dialogueact.NewItem("inform", c.Name, c.Value), dialogueact.CombineMax)
			}
		case "negate":
			for _, c := range confirms {
				out.AddMerge(f.Prob, dialogueact.NewItem("deny", c.Name, c.Value), dialogueact.CombineMax)
			}
		}
	}
	return out
}

func (t *Tracker) resetOnChange(bs *belief.State) {
	var changed []string
	for _, name := range bs.Names() {
		if bs.MPVChanged(name) && bs.Slot(name).Value.MPVP() >= t.acceptProb {
			changed = append(changed, name)
		}
	}
	for _, target := range t.ont.ResetTargets() {
		for _, c := range changed {
			if t.ont.ResetOnChange(target, c) {
				t.log.Debug("reset on change", zap.String("slot", target), zap.String("changed", c))
				bs.ResetVariable(target)
				break
			}
		}
	}
}

func (t *Tracker) lastTalkedAbout(bs *belief.State, facts []dialogueact.Fact) {
	votes := observations{}
	for _, f := range facts {
		if f.Item.DAT == "silence" {
			continue
		}
		for _, v := range t.ont.LastTalkedAbout(f.Item.DAT, f.Item.Name, f.Item.Value) {
			votes.add(v.Slot, v.Value, f.Prob)
		}
	}
	slots := make([]string, 0, len(votes))
	for s := range votes {
		slots = append(slots, s)
	}
	sort.Strings(slots)
	for _, s := range slots {
		if sl := bs.Slot(s); sl != nil {
			sl.Value.Update(votes[s])
		}
	}
}

func (t *Tracker) updateSilence(bs *belief.State, cn *dialogueact.ConfusionNetwork) {
	best := cn.BestDA(0.5)
	if !best.HasOnlyDAT("silence") {
		bs.Silence = 0
		return
	}
	for _, it := range best {
		if it.Name == "time" {
			if secs, err := strconv.ParseFloat(it.Value, 64); err == nil {
				bs.Silence = secs
				return
			}
		}
	}
	bs.Silence++
}
