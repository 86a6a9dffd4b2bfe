package core

import (
	"context"

	"github.com/pkg/errors"
)

// ErrLLMUnavailable is returned (wrapped) by LLMService implementations when the model could not be reached
// or did not answer.
var ErrLLMUnavailable = errors.New("AI service unavailable")

// CompletionRequest is a single chat completion: one system message followed by one user message.
type CompletionRequest struct {
	Feature     string // remodel | grade; used for metrics & logs
	System      string
	Prompt      string
	JSON        bool // ask the model for a JSON object
	Temperature *float32
	MaxTokens   int
}

// LLMService is any service that can complete a prompt.
type LLMService interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// IsLLMUnavailable reports whether err originates from an LLMService failure.
func IsLLMUnavailable(err error) bool {
	return errors.Cause(err) == ErrLLMUnavailable
}
