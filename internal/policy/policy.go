// Package policy decides, turn by turn, whether the assistant answers
// generically, asks a clarifying question, surfaces specialists or escalates
// to human support.
package policy

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/sportmind/intake/internal/directory"
	"github.com/sportmind/intake/internal/extract"
	"github.com/sportmind/intake/internal/session"
)

// Action is the single decision emitted per processed turn.
type Action string

const (
	ActionAskProblem  Action = "ask_problem"
	ActionAskAge      Action = "ask_age"
	ActionAskBoth     Action = "ask_both"
	ActionRecommend   Action = "recommend"
	ActionEscalate    Action = "escalate"
	ActionPassThrough Action = "pass_through"
)

const (
	// DirectThreshold is the fixed similarity cutoff for explicit
	// specialist requests.
	DirectThreshold float32 = 0.35

	// CooldownTurns is the minimum number of turns between two unsolicited
	// recommendations for the same session.
	CooldownTurns = 3

	directTopN  = 2
	ambientTopN = 1
)

// Decision is the transient outcome of one turn.
type Decision struct {
	Action Action

	// Matches carries 0-2 directory records when Action is recommend.
	Matches []directory.Specialist

	// ClarificationVariant indexes the template pool for ask_* actions.
	ClarificationVariant int

	// NoMatch marks a direct request whose search came back empty; the
	// composer renders the try-rephrasing fallback for it.
	NoMatch bool

	// RetrievalFailed marks a turn degraded because the embedding service
	// was unavailable.
	RetrievalFailed bool
}

// Searcher is the retrieval dependency; satisfied by *directory.Index.
type Searcher interface {
	Search(ctx context.Context, query string, topN int, threshold float32, group directory.AgeGroup) ([]directory.Specialist, error)
}

// Engine evaluates the per-turn decision procedure.
type Engine struct {
	index Searcher
	log   *slog.Logger

	// poolSize reports how many clarification templates exist for an
	// action; pick selects one. Both injectable for deterministic tests.
	poolSize func(Action) int
	pick     func(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithVariantPicker overrides the clarification template selector. A nil
// pick keeps the default random selection.
func WithVariantPicker(poolSize func(Action) int, pick func(n int) int) Option {
	return func(e *Engine) {
		if poolSize != nil {
			e.poolSize = poolSize
		}
		if pick != nil {
			e.pick = pick
		}
	}
}

// NewEngine creates a decision engine over the given retrieval index.
func NewEngine(index Searcher, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		index:    index,
		log:      log.With("component", "policy"),
		poolSize: func(Action) int { return 1 },
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// AdaptiveThreshold maps message length to a similarity cutoff for ambient
// retrieval: short messages carry less signal, so the bar is lowered.
func AdaptiveThreshold(message string) float32 {
	switch words := len(strings.Fields(message)); {
	case words <= 3:
		return 0.25
	case words <= 8:
		return 0.30
	default:
		return DirectThreshold
	}
}

// Decide runs the decision procedure for one turn. The session must already
// reflect the slots extracted from this message; Decide itself never mutates
// it. Counter bookkeeping is the caller's job: reset on recommend, increment
// on everything else.
func (e *Engine) Decide(ctx context.Context, slots extract.Slots, sess *session.Session) Decision {
	// Escalation wins over everything except the greeting short-circuit,
	// which never reaches the policy at all.
	if slots.Escalation {
		return Decision{Action: ActionEscalate}
	}

	if slots.DirectRequest {
		if !sess.Ready() {
			return e.clarify(ActionAskBoth)
		}
		return e.directSearch(ctx, slots.EffectiveMessage, sess.AgeGroup)
	}

	if !sess.Ready() {
		switch {
		case sess.ProblemCollected && !sess.AgeCollected:
			return e.clarify(ActionAskAge)
		case !sess.ProblemCollected && sess.AgeCollected:
			return e.clarify(ActionAskProblem)
		default:
			return Decision{Action: ActionPassThrough}
		}
	}

	return e.ambientSearch(ctx, slots.EffectiveMessage, sess)
}

func (e *Engine) clarify(action Action) Decision {
	d := Decision{Action: action}
	if n := e.poolSize(action); n > 1 {
		d.ClarificationVariant = e.pick(n)
	}

	return d
}

// directSearch serves an explicit specialist request. It is not subject to
// the cooldown counter.
func (e *Engine) directSearch(ctx context.Context, query string, group directory.AgeGroup) Decision {
	matches, err := e.index.Search(ctx, query, directTopN, DirectThreshold, group)
	if err != nil {
		e.log.Error("direct retrieval failed, degrading to pass-through", "error", err)
		return Decision{Action: ActionPassThrough, RetrievalFailed: true}
	}
	if len(matches) == 0 {
		return Decision{Action: ActionPassThrough, NoMatch: true}
	}

	return Decision{Action: ActionRecommend, Matches: matches}
}

// ambientSearch surfaces the single best match once the profile is complete,
// gated by the cooldown so the assistant does not repeat itself every turn.
func (e *Engine) ambientSearch(ctx context.Context, query string, sess *session.Session) Decision {
	if sess.TurnsSinceRecommendation < CooldownTurns {
		return Decision{Action: ActionPassThrough}
	}

	matches, err := e.index.Search(ctx, query, ambientTopN, AdaptiveThreshold(query), sess.AgeGroup)
	if err != nil {
		e.log.Error("ambient retrieval failed, degrading to pass-through", "error", err)
		return Decision{Action: ActionPassThrough, RetrievalFailed: true}
	}
	if len(matches) == 0 {
		return Decision{Action: ActionPassThrough}
	}

	return Decision{Action: ActionRecommend, Matches: matches}
}
