// Package realtime defines the Provider interface for realtime voice model
// backends.
//
// A realtime provider wraps a voice AI service that accepts raw audio input
// and returns synthesised audio output in a single, stateful session —
// performing speech recognition, turn-taking, and speech synthesis
// internally under a supplied instructions prompt. The interview agent is
// the sole consumer: it bridges room audio into the session and persists the
// committed transcript events the session emits.
//
// All implementations must be safe for concurrent use.
package realtime

import (
	"context"
	"time"

	"github.com/intervox/intervox/pkg/interview"
)

// Event is a committed utterance surfaced by the model: either the user's
// recognised speech or the model's own spoken reply.
type Event struct {
	// Role is [interview.RoleUser] for recognised user speech and
	// [interview.RoleAssistant] for model speech.
	Role interview.Role

	// Text is the committed utterance text.
	Text string

	// Timestamp is the wall clock when the utterance was committed.
	Timestamp time.Time
}

// SessionConfig is the initial configuration for a new voice session.
type SessionConfig struct {
	// Voice selects the synthesised voice (provider-specific identifier).
	Voice string

	// Instructions is the system-level prompt that defines the interviewer
	// persona, the target role, and the question budget. Static per session.
	Instructions string
}

// SessionHandle represents an open realtime voice session. It is an
// interface so that agent tests can supply scripted implementations without
// a live provider connection.
//
// Every method must return quickly; audio I/O is channel-based so the room
// bridge never blocks. Callers must call Close when done.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 audio chunk from the room to the model.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel emitting the model's synthesised
	// speech as raw PCM16 slices. Closed when the session ends; check
	// [SessionHandle.Err] afterwards.
	Audio() <-chan []byte

	// Transcripts returns a read-only channel emitting one [Event] per
	// committed utterance, in commit order. Closed when the session ends.
	Transcripts() <-chan Event

	// Say instructs the model to speak the given text verbatim. Used for
	// the greeting and closing lines.
	Say(text string) error

	// Interrupt stops the current model response and discards buffered
	// audio. Used on user barge-in.
	Interrupt() error

	// Err returns the error that terminated the session prematurely, or nil
	// if it ended cleanly. Check after the channels close.
	Err() error

	// Close terminates the session and closes the Audio and Transcripts
	// channels. Idempotent.
	Close() error
}

// Provider is the abstraction over any realtime voice backend.
type Provider interface {
	// Connect establishes a new voice session. The returned handle is ready
	// to accept audio immediately. The caller owns it and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
