// Package ai provides the text-generation and embedding clients used by the
// intake service, with interchangeable backends behind a factory.
package ai

import (
	"context"
	"errors"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrGenerationUnavailable indicates the text-generation service failed or
// timed out. Callers degrade the turn instead of failing it outright.
var ErrGenerationUnavailable = errors.New("text generation unavailable")

// Message is one role-tagged entry of the conversation sent to the
// generation backend.
type Message struct {
	Role    string
	Content string
}

// Generator produces a free-text reply for a role-tagged message list.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
