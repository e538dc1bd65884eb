// Package policy decides the system dialogue act from the belief state.
//
// The decision is a fixed priority list of predicates over the belief; the
// first one that holds selects the action. External lookups happen inside
// Decide and block the turn.
package policy

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"pti/dm/internal/belief"
	"pti/dm/internal/config"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/directions"
	"pti/dm/internal/ontology"
	"pti/dm/internal/weather"
)

// RNG is the source of every random choice the policy makes.
type RNG interface {
	Intn(n int) int
}

// Options configures a Policy.
type Options struct {
	Dialogue   config.Dialogue
	Ontology   *ontology.Ontology
	Directions directions.Finder
	Weather    weather.Finder
	// InferDefaultStops lets a city-only endpoint be sent as the city's
	// main stop. Without it an ambiguous city becomes the any-value sentinel.
	InferDefaultStops bool
	Now               func() time.Time
	Rand              RNG
	Logger            *zap.Logger
}

// Policy is the handcrafted policy of one dialogue. It keeps the system act
// history and is not safe for concurrent use.
type Policy struct {
	cfg               config.Dialogue
	ont               *ontology.Ontology
	dirs              directions.Finder
	weather           weather.Finder
	inferDefaultStops bool
	now               func() time.Time
	rng               RNG
	log               *zap.Logger

	history []dialogueact.DialogueAct
}

func New(opts Options) *Policy {
	p := &Policy{
		cfg:               opts.Dialogue,
		ont:               opts.Ontology,
		dirs:              opts.Directions,
		weather:           opts.Weather,
		inferDefaultStops: opts.InferDefaultStops,
		now:               opts.Now,
		rng:               opts.Rand,
		log:               opts.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.log = p.log.Named("policy")
	return p
}

// History returns the system acts emitted so far, oldest first.
func (p *Policy) History() []dialogueact.DialogueAct { return p.history }

// randbool is true in one of n cases.
func (p *Policy) randbool(n int) bool { return p.rng.Intn(n) == 0 }

func (p *Policy) clock() time.Time {
	loc := p.ont.Location()
	if loc == nil {
		loc = time.Local
	}
	return p.now().In(loc)
}

// turn is what the predicates look at, computed once per decision.
type turn struct {
	ctx          context.Context
	bs           *belief.State
	ludait       string
	requested    belief.Slots
	confirmed    belief.Slots
	noninformed  belief.Slots
	accepted     belief.Slots
	toConfirm    belief.Slots
	toSelect     belief.Slots
	changed      belief.Slots
	stateChanged bool
}

// acceptedMPV is the slot's mpv when accepted, none otherwise. A dontcare
// mpv is also none since it constrains nothing.
func (t *turn) acceptedMPV(slot string) string {
	h, ok := t.accepted[slot]
	if !ok || h.MPV() == ontology.DontCare {
		return ontology.None
	}
	return h.MPV()
}

func (p *Policy) observe(ctx context.Context, bs *belief.State) *turn {
	c := p.cfg
	t := &turn{
		ctx:          ctx,
		bs:           bs,
		ludait:       bs.LastUserDAType(c.AcceptProbLudait),
		requested:    bs.SlotsBeingRequested(c.AcceptProbBeingRequested),
		confirmed:    bs.SlotsBeingConfirmed(c.AcceptProbBeingConfirmed),
		noninformed:  bs.SlotsBeingNoninformed(c.AcceptProbNoninformed),
		accepted:     bs.AcceptedSlots(c.AcceptProb),
		toConfirm:    bs.SlotsToBeConfirmed(c.ConfirmProb, c.AcceptProb),
		toSelect:     bs.SlotsToBeSelected(c.SelectProb),
		changed:      bs.ChangedSlots(c.AcceptProb),
		stateChanged: bs.StateChanged(c.MinChangeProb),
	}
	p.log.Debug("slot stats",
		zap.Int("turn", bs.Turn),
		zap.String("ludait", t.ludait),
		zap.Strings("requested", t.requested.Names()),
		zap.Strings("confirmed", t.confirmed.Names()),
		zap.Strings("noninformed", t.noninformed.Names()),
		zap.Strings("accepted", t.accepted.Names()),
		zap.Strings("to_confirm", t.toConfirm.Names()),
		zap.Strings("to_select", t.toSelect.Names()),
		zap.Strings("changed", t.changed.Names()),
		zap.Bool("state_changed", t.stateChanged))
	return t
}

// Decide returns the system act for the current belief and appends it to
// the history. It may modify bs: answered requests and confirmations are
// cleared, ludait is reset once acted upon, and restart wipes the belief.
func (p *Policy) Decide(ctx context.Context, bs *belief.State) dialogueact.DialogueAct {
	t := p.observe(ctx, bs)
	da := FilterIconfirms(p.decide(t))
	if len(da) == 0 {
		da = p.backoff(bs)
	}
	p.history = append(p.history, da)
	return da
}

func (p *Policy) decide(t *turn) dialogueact.DialogueAct {
	bs := t.bs
	pending := len(t.toSelect) > 0 || len(t.toConfirm) > 0

	switch {
	case bs.Turn > p.cfg.MaxTurns:
		return dialogueact.MustParse(`bye()&inform(toolong="true")`)

	case len(p.history) == 0:
		bs.LUDAIT.Reset()
		return dialogueact.MustParse("hello()")

	case t.ludait == "silence" && (bs.Silence > p.cfg.SilenceTimeout || !pending):
		bs.LUDAIT.Reset()
		if bs.Silence > p.cfg.SilenceTimeout {
			return dialogueact.MustParse(`inform(silence_timeout="true")`)
		}
		return dialogueact.MustParse("silence()")

	case t.accepted.Has("lta_bye"):
		bs.LUDAIT.Reset()
		bs.Slot("lta_bye").Value.Reset()
		return dialogueact.MustParse("bye()")

	case t.ludait == "null" || t.ludait == "other":
		bs.LUDAIT.Reset()
		da := dialogueact.MustParse("notunderstood()")
		if p.cfg.ContextHelp {
			da.Extend(p.contextHelp(bs))
		}
		return da

	case t.ludait == "help":
		bs.LUDAIT.Reset()
		return p.helpMenu(t)

	case t.ludait == "thankyou":
		if len(t.changed) == 0 {
			bs.Restart()
		}
		bs.LUDAIT.Reset()
		return dialogueact.MustParse(`inform(cordiality="true")&hello()`)

	case t.ludait == "restart":
		bs.Restart()
		return dialogueact.MustParse("restart()&hello()")

	case t.ludait == "repeat":
		bs.LUDAIT.Reset()
		return dialogueact.MustParse("irepeat()")
	}

	if t.ludait == "silence" {
		// a pending confirmation or selection is asked again
		bs.LUDAIT.Reset()
	}

	switch {
	case len(t.toSelect) > 0:
		da := p.iconfirms(t.changed)
		da.Extend(selectInfo(t.toSelect))
		return da

	case len(t.toConfirm) > 0:
		da := p.iconfirms(t.changed)
		da.Extend(confirmInfo(t.toConfirm))
		return da

	case t.requested.Has("current_time"):
		return p.currentTime(t)

	case bs.Slot("lta_task").Value.Test("weather", p.cfg.AcceptProb, false):
		da := p.iconfirms(t.changed)
		da.Extend(p.weatherTopic(t))
		return da
	}

	da := p.iconfirms(t.changed)
	da.Extend(p.connectionTopic(t))
	return da
}

// iconfirms implicitly confirms every changed slot the system may iconfirm.
func (p *Policy) iconfirms(changed belief.Slots) dialogueact.DialogueAct {
	var da dialogueact.DialogueAct
	for _, name := range changed.Names() {
		if p.ont.HasAttr(name, ontology.AttrSystemIconfirms) {
			da.Add("iconfirm", name, changed[name].MPV())
		}
	}
	return da
}

// selectInfo offers the two best values of the slot whose runner-up is
// strongest.
func selectInfo(slots belief.Slots) dialogueact.DialogueAct {
	names := slots.Names()
	sort.SliceStable(names, func(i, j int) bool {
		_, a := slots[names[i]].TMPVsP()
		_, b := slots[names[j]].TMPVsP()
		return a > b
	})
	v1, v2 := slots[names[0]].TMPVs()
	return dialogueact.Of(
		dialogueact.NewItem("select", names[0], v1),
		dialogueact.NewItem("select", names[0], v2),
	)
}

// confirmInfo asks to confirm the single slot with the most probable value.
func confirmInfo(slots belief.Slots) dialogueact.DialogueAct {
	names := slots.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return slots[names[i]].MPVP() > slots[names[j]].MPVP()
	})
	return dialogueact.Of(dialogueact.NewItem("confirm", names[0], slots[names[0]].MPV()))
}

type pair struct{ name, value string }

// FilterIconfirms drops implicit confirms that repeat an inform of the same
// act, repeat each other, carry a meta value, or name a stop or state that
// equals an informed or iconfirmed city. Applying it twice changes nothing.
func FilterIconfirms(da dialogueact.DialogueAct) dialogueact.DialogueAct {
	informs := map[pair]bool{}
	iconfirms := map[pair]int{}
	for _, it := range da {
		switch it.DAT {
		case "inform":
			informs[pair{it.Name, it.Value}] = true
		case "iconfirm":
			iconfirms[pair{it.Name, it.Value}]++
		}
	}

	out := make(dialogueact.DialogueAct, 0, len(da))
	for _, it := range da {
		if it.DAT == "iconfirm" {
			k := pair{it.Name, it.Value}
			if drop := sameAsCity(it, informs, iconfirms); informs[k] || drop {
				continue
			}
			if iconfirms[k] > 1 {
				iconfirms[k]--
				continue
			}
			if it.Value == "" || it.Value == ontology.None || it.Value == ontology.DontCare {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

func sameAsCity(it dialogueact.Item, informs map[pair]bool, iconfirms map[pair]int) bool {
	var city string
	switch {
	case strings.HasSuffix(it.Name, "_stop"):
		city = strings.TrimSuffix(it.Name, "stop") + "city"
	case strings.HasSuffix(it.Name, "_state"):
		city = strings.TrimSuffix(it.Name, "state") + "city"
	default:
		return false
	}
	k := pair{city, it.Value}
	return informs[k] || iconfirms[k] > 0
}
