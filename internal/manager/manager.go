// Package manager runs dialogues: each one owns a belief, a tracker, a
// policy and a session directory for raw provider responses.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pti/dm/internal/belief"
	"pti/dm/internal/config"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/directions"
	"pti/dm/internal/journal"
	"pti/dm/internal/metrics"
	"pti/dm/internal/ontology"
	"pti/dm/internal/policy"
	"pti/dm/internal/sessionlog"
	"pti/dm/internal/tracker"
	"pti/dm/internal/weather"
)

// ErrClosed is returned for turns on a closed dialogue.
var ErrClosed = errors.New("manager: dialogue closed")

// Journal receives every completed turn.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options are shared by all dialogues of a Factory.
type Options struct {
	Dialogue          config.Dialogue
	Ontology          *ontology.Ontology
	Directions        directions.Finder
	Weather           weather.Finder
	InferDefaultStops bool
	// SessionDir is the root of the per-dialogue directories; empty disables
	// response logging.
	SessionDir string
	Journal    Journal
	Logger     *zap.Logger
	Now        func() time.Time
	// Rand returns the random source of a new dialogue.
	Rand func() policy.RNG
}

// Factory opens dialogues.
type Factory struct {
	opts Options
	log  *zap.Logger
}

func NewFactory(opts Options) *Factory {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = func() policy.RNG { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	return &Factory{opts: opts, log: opts.Logger}
}

// Open starts a dialogue with a fresh id.
func (f *Factory) Open() (*Dialogue, error) { return f.OpenID(uuid.NewString()) }

// OpenID starts a dialogue with the given id.
func (f *Factory) OpenID(id string) (*Dialogue, error) {
	o := f.opts
	log := f.log.With(zap.String("dialogue_id", id))
	d := &Dialogue{
		ID:      id,
		bs:      belief.NewState(o.Ontology),
		tracker: tracker.New(o.Ontology, o.Dialogue.AcceptProb, log),
		journal: o.Journal,
		log:     log,
		now:     o.Now,
		policy: policy.New(policy.Options{
			Dialogue:          o.Dialogue,
			Ontology:          o.Ontology,
			Directions:        o.Directions,
			Weather:           o.Weather,
			InferDefaultStops: o.InferDefaultStops,
			Now:               o.Now,
			Rand:              o.Rand(),
			Logger:            log,
		}),
	}
	if o.SessionDir != "" {
		s, err := sessionlog.OpenNamed(o.SessionDir, o.Now().UTC().Format("20060102-150405")+"-"+id)
		if err != nil {
			return nil, fmt.Errorf("manager: open dialogue %s: %w", id, err)
		}
		d.session = s
	}
	log.Info("dialogue opened")
	return d, nil
}

// Dialogue is one conversation. Turns are serialized.
type Dialogue struct {
	ID string

	mu      sync.Mutex
	bs      *belief.State
	tracker *tracker.Tracker
	policy  *policy.Policy
	session *sessionlog.Session
	journal Journal
	log     *zap.Logger
	now     func() time.Time
	closed  bool
}

// Turn folds the user's confusion network into the belief and returns the
// system act in sorted form. A nil network is an empty turn, which is how a
// dialogue is greeted.
func (d *Dialogue) Turn(ctx context.Context, cn *dialogueact.ConfusionNetwork) (dialogueact.DialogueAct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if cn == nil {
		cn = dialogueact.NewConfusionNetwork()
	}
	start := time.Now()
	if d.session != nil {
		ctx = sessionlog.WithRecorder(ctx, d.session)
	}

	d.tracker.Update(d.bs, cn, d.policy.History())
	da := d.policy.Decide(ctx, d.bs).Sort().Normalize()

	metrics.Turns.Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	metrics.PolicyActions.WithLabelValues(da[0].DAT).Inc()
	d.log.Debug("turn",
		zap.Int("turn", d.bs.Turn),
		zap.String("user", cn.String()),
		zap.String("system", da.String()))

	if d.journal != nil {
		err := d.journal.Record(ctx, journal.Entry{
			DialogueID: d.ID, Turn: d.bs.Turn, User: cn.String(), System: da.String(), At: d.now(),
		})
		if err != nil {
			d.log.Warn("journal write failed", zap.Error(err))
		}
	}
	return da, nil
}

// TurnCount is the number of user turns seen.
func (d *Dialogue) TurnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bs.Turn
}

// History returns the system acts emitted so far.
func (d *Dialogue) History() []dialogueact.DialogueAct {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialogueact.DialogueAct(nil), d.policy.History()...)
}

// SessionDir is the directory holding provider responses, empty when
// logging is disabled.
func (d *Dialogue) SessionDir() string {
	if d.session == nil {
		return ""
	}
	return d.session.Dir()
}

// Close ends the dialogue. Later turns fail with ErrClosed.
func (d *Dialogue) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.log.Info("dialogue closed", zap.Int("turn", d.bs.Turn))
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}
