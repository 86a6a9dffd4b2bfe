package testutil

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

// LLMStub answers completions from a queue of canned responses and records every request.
// An empty queue answers with core.ErrLLMUnavailable.
type LLMStub struct {
	mu        sync.Mutex
	responses []stubResponse
	requests  []core.CompletionRequest
}

type stubResponse struct {
	raw string
	err error
}

var _ core.LLMService = (*LLMStub)(nil) // interface compliance check

func NewLLMStub(responses ...string) *LLMStub {
	stub := &LLMStub{}
	stub.Queue(responses...)
	return stub
}

func (s *LLMStub) Complete(_ context.Context, req core.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return "", errors.Wrap(core.ErrLLMUnavailable, "no response queued")
	}
	res := s.responses[0]
	s.responses = s.responses[1:]
	return res.raw, res.err
}

func (s *LLMStub) Queue(responses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range responses {
		s.responses = append(s.responses, stubResponse{raw: raw})
	}
}

// Fail queues a failure.
func (s *LLMStub) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResponse{err: err})
}

func (s *LLMStub) Requests() []core.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CompletionRequest{}, s.requests...)
}

func (s *LLMStub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = nil
	s.requests = nil
}
