// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the coach services send correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"overall": 70}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/intervox/intervox/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Responses are consumed in order, one per Complete call; when exhausted the
// last entry repeats. Set Err to make every call fail instead.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of completion contents to return.
	Responses []string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall
}

// Complete records the call and returns the next configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, CompleteCall{Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	idx := len(p.Calls) - 1
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	return &llm.CompletionResponse{Content: p.Responses[idx]}, nil
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
