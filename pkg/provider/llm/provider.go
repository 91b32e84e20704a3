// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, a
// local Ollama instance) and exposes a uniform completion interface for the
// coach services — interview planning, answer evaluation, and session
// summarisation — without coupling them to any specific SDK.
//
// Implementors must be safe for concurrent use and must wrap quota and
// availability failures (429 and the 5xx family) in [ErrUnavailable] so that
// callers can engage their deterministic fallbacks.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks a completion failure caused by quota exhaustion,
// rate limiting, or upstream outage rather than by the request itself.
var ErrUnavailable = errors.New("llm: provider unavailable")

// Message is a single message in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history. Providers without a dedicated system field
	// prepend it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Quota and availability failures are wrapped in [ErrUnavailable].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// transientMarkers are substrings that identify quota and availability
// failures in backends that do not expose a structured status code.
var transientMarkers = []string{
	"429", "rate limit", "rate_limit", "quota", "overloaded",
	"500", "502", "503", "504", "timeout", "connection refused",
}

// WrapTransient wraps err in [ErrUnavailable] when its message indicates a
// quota or availability condition, and returns it unchanged otherwise.
// Providers with structured errors should classify directly instead.
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}
