package agent

import (
	"sync"

	"github.com/intervox/intervox/pkg/provider/realtime"
)

// muteSession is the realtime.SessionHandle used when no voice provider is
// configured or the provider connection failed. It accepts and discards
// audio, never speaks, and emits nothing; the agent keeps serving room
// events, capturing user text events into the transcript, so snapshots and
// finalize still run.
type muteSession struct {
	audio       chan []byte
	transcripts chan realtime.Event
	closeOnce   sync.Once
}

var _ realtime.SessionHandle = (*muteSession)(nil)

func newMuteSession() *muteSession {
	return &muteSession{
		audio:       make(chan []byte),
		transcripts: make(chan realtime.Event),
	}
}

func (m *muteSession) SendAudio(chunk []byte) error { return nil }

func (m *muteSession) Audio() <-chan []byte { return m.audio }

func (m *muteSession) Transcripts() <-chan realtime.Event { return m.transcripts }

func (m *muteSession) Say(text string) error { return nil }

func (m *muteSession) Interrupt() error { return nil }

func (m *muteSession) Err() error { return nil }

func (m *muteSession) Close() error {
	m.closeOnce.Do(func() {
		close(m.audio)
		close(m.transcripts)
	})
	return nil
}
