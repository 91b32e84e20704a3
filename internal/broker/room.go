package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// EventType classifies a room event.
type EventType string

const (
	// EventParticipantJoined fires when a participant enters the room.
	EventParticipantJoined EventType = "participant_joined"

	// EventParticipantDisconnected fires when a participant leaves.
	EventParticipantDisconnected EventType = "participant_disconnected"

	// EventAudioFrame carries one inbound PCM16 audio chunk.
	EventAudioFrame EventType = "audio_frame"

	// EventUserText carries one user utterance sent over the room's data
	// channel. This is the transcript source when the agent runs muted.
	EventUserText EventType = "user_text"
)

// Event is one room event consumed by the agent.
type Event struct {
	Type        EventType
	Participant string

	// Audio is set for [EventAudioFrame] only.
	Audio []byte

	// Text is set for [EventUserText] only.
	Text string
}

// wireEvent is the broker's JSON envelope for room traffic in both
// directions. Audio travels base64-encoded.
type wireEvent struct {
	Type        string `json:"type"`
	Participant string `json:"participant,omitempty"`
	Audio       string `json:"audio,omitempty"`
	Text        string `json:"text,omitempty"`
}

// ConnectRoom joins a room as the agent and returns the event stream plus
// an audio publish sink. The caller owns the connection and must Close it.
func (b *Broker) ConnectRoom(ctx context.Context, room string) (*RoomConn, error) {
	if !b.Configured() {
		return nil, ErrNotConfigured
	}

	token, err := b.mintAgentToken(room)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, b.url+"/room/"+room, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("broker: join room %s: %w", room, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rc := &RoomConn{
		room:   room,
		conn:   conn,
		events: make(chan Event, 64),
		ctx:    connCtx,
		cancel: cancel,
	}
	go rc.receiveLoop()
	return rc, nil
}

// RoomConn is an agent's connection to one room.
type RoomConn struct {
	room   string
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Room returns the room name this connection is joined to.
func (rc *RoomConn) Room() string { return rc.room }

// Events returns the room event stream. Closed when the connection ends;
// check [RoomConn.Err] afterwards.
func (rc *RoomConn) Events() <-chan Event { return rc.events }

// receiveLoop reads room traffic and dispatches it. It owns the events
// channel and closes it on exit.
func (rc *RoomConn) receiveLoop() {
	defer rc.closeOnce.Do(func() { close(rc.events) })

	for {
		_, data, err := rc.conn.Read(rc.ctx)
		if err != nil {
			if rc.ctx.Err() != nil {
				return
			}
			rc.setErr(err)
			return
		}

		var evt wireEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		out := Event{Participant: evt.Participant}
		switch EventType(evt.Type) {
		case EventParticipantJoined:
			out.Type = EventParticipantJoined
		case EventParticipantDisconnected:
			out.Type = EventParticipantDisconnected
		case EventAudioFrame:
			audio, err := base64.StdEncoding.DecodeString(evt.Audio)
			if err != nil || len(audio) == 0 {
				continue
			}
			out.Type = EventAudioFrame
			out.Audio = audio
		case EventUserText:
			if evt.Text == "" {
				continue
			}
			out.Type = EventUserText
			out.Text = evt.Text
		default:
			continue
		}

		select {
		case rc.events <- out:
		case <-rc.ctx.Done():
			return
		}
	}
}

// PublishAudio sends one PCM16 chunk of the agent's speech into the room.
func (rc *RoomConn) PublishAudio(chunk []byte) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return fmt.Errorf("broker: room connection closed")
	}
	rc.mu.Unlock()

	data, err := json.Marshal(wireEvent{
		Type:  string(EventAudioFrame),
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return fmt.Errorf("broker: marshal audio frame: %w", err)
	}
	return rc.conn.Write(rc.ctx, websocket.MessageText, data)
}

// Err returns the error that terminated the connection prematurely, or nil.
func (rc *RoomConn) Err() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.errVal
}

func (rc *RoomConn) setErr(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.errVal == nil {
		rc.errVal = err
	}
}

// Close leaves the room and closes the event channel. Idempotent.
func (rc *RoomConn) Close() error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	rc.mu.Unlock()

	rc.cancel()
	rc.conn.Close(websocket.StatusNormalClosure, "leaving room")
	return nil
}
