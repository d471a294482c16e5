// Package api exposes the HTTP chat endpoint and orchestrates one intake
// turn: extraction, session update, policy decision, generation and
// composition.
package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sportmind/intake/internal/ai"
	"github.com/sportmind/intake/internal/compose"
	"github.com/sportmind/intake/internal/database"
	"github.com/sportmind/intake/internal/extract"
	"github.com/sportmind/intake/internal/logger"
	"github.com/sportmind/intake/internal/policy"
	"github.com/sportmind/intake/internal/session"
)

const (
	logPreviewLen  = 80
	persistTimeout = 5 * time.Second

	// greetingAction labels greeting short-circuit turns in transcripts;
	// greetings never reach the policy, so they have no Decision.
	greetingAction = "greeting"
)

// ChatService processes one turn per incoming message. Turns for the same
// client are serialized by the session store; different clients proceed
// concurrently.
type ChatService struct {
	sessions    *session.Store
	engine      *policy.Engine
	composer    *compose.Composer
	generator   ai.Generator
	turns       database.Store
	instruction string
	log         *slog.Logger
}

// NewChatService wires the intake core together. turns may be nil to
// disable transcript persistence.
func NewChatService(
	sessions *session.Store,
	engine *policy.Engine,
	composer *compose.Composer,
	generator ai.Generator,
	turns database.Store,
	instruction string,
	log *slog.Logger,
) *ChatService {
	if log == nil {
		log = slog.Default()
	}

	return &ChatService{
		sessions:    sessions,
		engine:      engine,
		composer:    composer,
		generator:   generator,
		turns:       turns,
		instruction: instruction,
		log:         log.With("component", "chat"),
	}
}

// ProcessTurn handles one non-empty message from a client and returns the
// composed response. A non-nil error means nothing presentable could be
// formed and the transport should answer with the generic failure payload.
func (s *ChatService) ProcessTurn(ctx context.Context, clientID, raw string) (string, error) {
	var (
		response string
		action   string
		turnErr  error
	)

	s.sessions.With(clientID, func(sess *session.Session) {
		slots := extract.Extract(raw, extract.Context{LastProblemMessage: sess.LastProblemMessage})

		if slots.Greeting {
			action = greetingAction
			response = compose.GreetingReply
			return
		}

		sess.AppendHistory(strings.TrimSpace(raw))
		s.applySlots(sess, slots, raw)

		decision := s.engine.Decide(ctx, slots, sess)
		action = string(decision.Action)

		if decision.Action == policy.ActionRecommend {
			sess.TurnsSinceRecommendation = 0
		} else {
			sess.TurnsSinceRecommendation++
		}

		switch decision.Action {
		case policy.ActionAskProblem, policy.ActionAskAge, policy.ActionAskBoth:
			sess.LastAskedGeneral = true
		}

		reply, genErr := s.generate(ctx, sess.History)
		if genErr != nil {
			s.log.Error("generation failed, degrading turn",
				"client_id", clientID,
				"message", logger.Truncate(raw, logPreviewLen),
				"error", genErr)
			if !renderable(decision) {
				turnErr = genErr
				return
			}
			// The composer substitutes an apology lead-in and still
			// delivers the structured blocks.
			reply = ""
		}

		response = s.composer.Compose(reply, decision)
	})

	if turnErr != nil {
		return "", turnErr
	}

	s.recordTurn(clientID, raw, action, response)

	return response, nil
}

// applySlots folds the extracted slots into the session. The age group is
// monotonic and the stored problem message is only replaced by a message
// independently judged to carry a problem statement.
func (s *ChatService) applySlots(sess *session.Session, slots extract.Slots, raw string) {
	problemBefore := sess.ProblemCollected

	switch {
	case slots.ProblemDetected:
		sess.SetProblem(slots.EffectiveMessage)
	case !problemBefore && sess.LastAskedGeneral &&
		!slots.FoundAge && !slots.Escalation &&
		slots.WordCount > extract.ShortMessageWords:
		// We asked for details and got a substantial answer without a
		// keyword hit: accept it as the problem statement.
		sess.SetProblem(strings.TrimSpace(raw))
	}

	if sess.ProblemCollected {
		sess.LastAskedGeneral = false
	}

	if slots.FoundAge {
		sess.SetAgeGroup(slots.AgeGroup)
	}
}

// generate asks the external service for the free-text reply: system
// instruction plus the recent user turns, role-tagged.
func (s *ChatService) generate(ctx context.Context, history []string) (string, error) {
	messages := make([]ai.Message, 0, len(history)+1)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: s.instruction})
	for _, msg := range history {
		messages = append(messages, ai.Message{Role: ai.RoleUser, Content: msg})
	}

	return s.generator.Generate(ctx, messages)
}

// renderable reports whether the decision carries blocks worth delivering
// even without a generated reply.
func renderable(d policy.Decision) bool {
	switch d.Action {
	case policy.ActionAskProblem, policy.ActionAskAge, policy.ActionAskBoth,
		policy.ActionEscalate, policy.ActionRecommend:
		return true
	case policy.ActionPassThrough:
		// A retrieval-only degradation still needs the generated reply to
		// carry the turn; with generation down too there is nothing left.
		return d.NoMatch
	default:
		return false
	}
}

// recordTurn persists the transcript row outside the session lock;
// persistence failures never affect the turn.
func (s *ChatService) recordTurn(clientID, message, action, response string) {
	if s.turns == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.turns.SaveTurn(ctx, &database.Turn{
		ClientID: clientID,
		Message:  message,
		Action:   action,
		Response: response,
	})
	if err != nil {
		s.log.Error("failed to persist turn transcript",
			"client_id", clientID,
			"message", logger.Truncate(message, logPreviewLen),
			"error", err)
	}
}
