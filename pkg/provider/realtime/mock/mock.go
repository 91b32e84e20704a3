// Package mock provides test doubles for the realtime.Provider and
// realtime.SessionHandle interfaces.
//
// Tests script a session by emitting transcript and audio events on demand
// and inspect what the caller sent through the recorded Say and SendAudio
// calls.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/intervox/intervox/pkg/provider/realtime"
)

// Compile-time interface checks.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*Session)(nil)

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned by every Connect call.
	ConnectErr error

	// Sessions records every session handed out by Connect, in order.
	Sessions []*Session

	// Configs records the SessionConfig of every Connect call, in order.
	Configs []realtime.SessionConfig
}

// Connect records the call and returns a fresh scripted Session.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	sess := NewSession()
	p.Sessions = append(p.Sessions, sess)
	p.Configs = append(p.Configs, cfg)
	return sess, nil
}

// SessionCount returns how many sessions Connect has handed out.
func (p *Provider) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sessions)
}

// Session returns the i-th session handed out by Connect.
func (p *Provider) Session(i int) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sessions[i]
}

// Config returns the SessionConfig of the i-th Connect call.
func (p *Provider) Config(i int) realtime.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Configs[i]
}

// Session is a scripted realtime.SessionHandle driven by the test.
type Session struct {
	mu sync.Mutex

	audioCh     chan []byte
	transcripts chan realtime.Event

	// SentAudio records every chunk passed to SendAudio.
	SentAudio [][]byte

	// SayCalls records every text passed to Say.
	SayCalls []string

	// SayErr, if non-nil, is returned by every Say call.
	SayErr error

	// Interrupts counts Interrupt calls.
	Interrupts int

	errVal    error
	closed    bool
	closeOnce sync.Once
}

// NewSession returns an open scripted session.
func NewSession() *Session {
	return &Session{
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan realtime.Event, 64),
	}
}

// EmitTranscript delivers a transcript event to the session consumer.
func (s *Session) EmitTranscript(evt realtime.Event) {
	s.transcripts <- evt
}

// EmitAudio delivers a synthesised audio chunk to the session consumer.
func (s *Session) EmitAudio(chunk []byte) {
	s.audioCh <- chunk
}

// Fail terminates the session with err, as a provider-side failure would.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.errVal == nil {
		s.errVal = err
	}
	s.mu.Unlock()
	s.closeChannels()
}

// SendAudio implements realtime.SessionHandle.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.SentAudio = append(s.SentAudio, chunk)
	return nil
}

// Audio implements realtime.SessionHandle.
func (s *Session) Audio() <-chan []byte { return s.audioCh }

// Transcripts implements realtime.SessionHandle.
func (s *Session) Transcripts() <-chan realtime.Event { return s.transcripts }

// Say implements realtime.SessionHandle.
func (s *Session) Say(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SayErr != nil {
		return s.SayErr
	}
	s.SayCalls = append(s.SayCalls, text)
	return nil
}

// Says returns a copy of every text passed to Say so far.
func (s *Session) Says() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SayCalls))
	copy(out, s.SayCalls)
	return out
}

// SentAudioCount returns how many chunks SendAudio has received.
func (s *Session) SentAudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SentAudio)
}

// Interrupt implements realtime.SessionHandle.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Interrupts++
	return nil
}

// Err implements realtime.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Closed reports whether Close or Fail has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements realtime.SessionHandle. Idempotent.
func (s *Session) Close() error {
	s.closeChannels()
	return nil
}

func (s *Session) closeChannels() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.audioCh)
		close(s.transcripts)
	})
}
