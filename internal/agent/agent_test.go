package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/coach"
	"github.com/intervox/intervox/internal/finalizer"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/realtime"
	rtmock "github.com/intervox/intervox/pkg/provider/realtime/mock"
)

// fakeRoom is a scripted Room driven by the test.
type fakeRoom struct {
	mu        sync.Mutex
	events    chan broker.Event
	published [][]byte
	closed    bool
	closeOnce sync.Once
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{events: make(chan broker.Event, 64)}
}

func (r *fakeRoom) Events() <-chan broker.Event { return r.events }

func (r *fakeRoom) PublishAudio(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, chunk)
	return nil
}

func (r *fakeRoom) Published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func (r *fakeRoom) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.events)
	})
	return nil
}

// fakeDialer hands out one fakeRoom and records the requested room names.
type fakeDialer struct {
	mu    sync.Mutex
	room  *fakeRoom
	err   error
	rooms []string
}

func (d *fakeDialer) ConnectRoom(ctx context.Context, room string) (Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.rooms = append(d.rooms, room)
	return d.room, nil
}

// harness bundles everything a single agent run needs.
type harness struct {
	store  *store.MemStore
	runner *Runner
	dialer *fakeDialer
	room   *fakeRoom
	voice  *rtmock.Provider
	sess   interview.Session
}

// newHarness creates a conversational session plus a runner wired to fakes.
// voice may be nil for mute mode.
func newHarness(t *testing.T, numQuestions int, voice *rtmock.Provider, opts ...Option) *harness {
	t.Helper()

	st := store.NewMemStore()
	sess, err := st.CreateSession(context.Background(), interview.Session{
		ID:           "sess-" + t.Name(),
		JobTitle:     "Backend Engineer",
		Seniority:    interview.SeniorityMid,
		Language:     "en",
		NumQuestions: numQuestions,
		Mode:         interview.ModeConversational,
		Status:       interview.StatusActive,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	room := newFakeRoom()
	dialer := &fakeDialer{room: room}
	fin := finalizer.New(st, coach.NewService(nil, 0), nil)

	var vp realtime.Provider
	if voice != nil {
		vp = voice
	}
	opts = append([]Option{WithSnapshotInterval(time.Hour)}, opts...)
	runner := NewRunner(st, fin, dialer, vp, opts...)

	return &harness{store: st, runner: runner, dialer: dialer, room: room, voice: voice, sess: sess}
}

// run starts HandleRoom in the background and returns a done channel.
func (h *harness) run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.runner.HandleRoom(ctx, broker.RoomName(h.sess.ID))
	}()
	return done
}

// session returns the agent's mock voice session once Connect has been called.
func (h *harness) session(t *testing.T) *rtmock.Session {
	t.Helper()
	waitFor(t, func() bool { return h.voice.SessionCount() > 0 })
	return h.voice.Session(0)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func assistant(text string) realtime.Event {
	return realtime.Event{Role: interview.RoleAssistant, Text: text, Timestamp: time.Now()}
}

func user(text string) realtime.Event {
	return realtime.Event{Role: interview.RoleUser, Text: text, Timestamp: time.Now()}
}

func awaitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not exit")
	}
}

func TestAgentCompletesInterview(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, &rtmock.Provider{})
	done := h.run(context.Background())
	sess := h.session(t)

	h.room.events <- broker.Event{Type: broker.EventParticipantJoined, Participant: "candidate"}

	// The greeting Say happens before the loop starts.
	waitFor(t, func() bool { return len(sess.Says()) >= 1 })

	sess.EmitTranscript(assistant("Welcome! Let's get started."))
	sess.EmitTranscript(assistant("Can you describe a system you designed?"))
	sess.EmitTranscript(user("I designed a payment pipeline."))
	sess.EmitTranscript(assistant("How did you handle failures in it?"))
	sess.EmitTranscript(user("We used retries with idempotency keys."))

	// The final answer triggers the closing Say; committing it finalizes.
	waitFor(t, func() bool { return len(sess.Says()) >= 2 })
	sess.EmitTranscript(assistant(sess.Says()[1]))
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if got.Summary == nil {
		t.Fatal("no summary on completed session")
	}
	if got.QuestionsAsked != 2 {
		t.Errorf("QuestionsAsked = %d, want 2", got.QuestionsAsked)
	}
	// Greeting + 2 questions + 2 answers + closing line.
	if len(got.Transcript) != 6 {
		t.Errorf("transcript has %d entries, want 6", len(got.Transcript))
	}
}

func TestAgentClosingPhraseSafetyNet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5, &rtmock.Provider{})
	done := h.run(context.Background())
	sess := h.session(t)

	sess.EmitTranscript(assistant("Tell me about yourself?"))
	sess.EmitTranscript(user("I am a backend engineer."))
	// The model concludes early on its own; the phrase match catches it.
	sess.EmitTranscript(assistant("Great, that concludes our interview today."))
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if got.QuestionsAsked != 1 {
		t.Errorf("QuestionsAsked = %d, want 1", got.QuestionsAsked)
	}
}

func TestAgentDisconnectFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, &rtmock.Provider{})
	done := h.run(context.Background())
	sess := h.session(t)

	sess.EmitTranscript(assistant("First question: why this role?"))
	sess.EmitTranscript(user("Because I enjoy distributed systems."))
	waitFor(t, func() bool { return len(sess.Transcripts()) == 0 })

	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected, Participant: "candidate"}
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if got.Summary == nil || got.Summary.CompletionNote == "" {
		t.Errorf("partial interview should carry a completion note, got %+v", got.Summary)
	}
}

func TestAgentDisconnectWithoutTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, &rtmock.Provider{})
	done := h.run(context.Background())
	h.session(t)

	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected, Participant: "candidate"}
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusActive {
		t.Errorf("Status = %q, want active (nothing to finalize)", got.Status)
	}
}

func TestAgentMuteModeCapturesUserText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, nil)
	done := h.run(context.Background())

	waitFor(t, func() bool {
		h.dialer.mu.Lock()
		defer h.dialer.mu.Unlock()
		return len(h.dialer.rooms) == 1
	})

	// Audio is accepted and discarded, but text events sent over the room's
	// data channel still land in the transcript.
	h.room.events <- broker.Event{Type: broker.EventAudioFrame, Audio: []byte{1, 2, 3}}
	h.room.events <- broker.Event{Type: broker.EventUserText, Participant: "candidate", Text: "I led the migration to event sourcing."}
	h.room.events <- broker.Event{Type: broker.EventUserText, Participant: "candidate", Text: "It cut replay time in half."}
	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected, Participant: "candidate"}
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(got.Transcript))
	}
	for i, entry := range got.Transcript {
		if entry.Role != interview.RoleUser {
			t.Errorf("entry %d role = %q, want user", i, entry.Role)
		}
	}
	if got.Summary == nil {
		t.Fatal("no summary on finalized mute session")
	}
}

func TestAgentAudioBridge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, &rtmock.Provider{})
	done := h.run(context.Background())
	sess := h.session(t)

	h.room.events <- broker.Event{Type: broker.EventAudioFrame, Audio: []byte{1, 2}}
	h.room.events <- broker.Event{Type: broker.EventAudioFrame, Audio: []byte{3, 4}}
	waitFor(t, func() bool { return sess.SentAudioCount() == 2 })

	sess.EmitAudio([]byte{9, 9})
	waitFor(t, func() bool { return h.room.Published() == 1 })

	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected}
	awaitDone(t, done)
}

func TestAgentSnapshotTicker(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, &rtmock.Provider{}, WithSnapshotInterval(5*time.Millisecond))
	done := h.run(context.Background())
	sess := h.session(t)

	sess.EmitTranscript(assistant("What is your greatest strength?"))
	sess.EmitTranscript(user("Persistence."))

	// The ticker snapshots while the interview is still running.
	waitFor(t, func() bool {
		got, err := h.store.GetSession(context.Background(), h.sess.ID)
		return err == nil && len(got.Transcript) == 2 && got.Status == interview.StatusActive
	})

	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected}
	awaitDone(t, done)
}

func TestAgentShutdownFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, &rtmock.Provider{})
	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)
	sess := h.session(t)

	sess.EmitTranscript(assistant("First question?"))
	sess.EmitTranscript(user("An answer."))
	waitFor(t, func() bool { return len(h.room.events) == 0 && len(sess.Transcripts()) == 0 })

	cancel()
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
}

func TestAgentVoiceFailureKeepsRoomAlive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3, &rtmock.Provider{})
	done := h.run(context.Background())
	sess := h.session(t)

	sess.EmitTranscript(assistant("A question?"))
	sess.EmitTranscript(user("An answer."))
	waitFor(t, func() bool { return len(sess.Transcripts()) == 0 })

	// The voice session dies; the agent stays in the room and the disconnect
	// path still finalizes the captured transcript.
	sess.Fail(context.DeadlineExceeded)
	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected}
	awaitDone(t, done)

	got, err := h.store.GetSession(context.Background(), h.sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
}

func TestHandleRoomSkipsBadDispatches(t *testing.T) {
	t.Parallel()

	st := store.NewMemStore()
	fin := finalizer.New(st, coach.NewService(nil, 0), nil)
	dialer := &fakeDialer{room: newFakeRoom()}
	runner := NewRunner(st, fin, dialer, nil)

	// Not a session room.
	runner.HandleRoom(context.Background(), "meeting-123")
	// Session room without a stored session.
	runner.HandleRoom(context.Background(), broker.RoomName("nope"))

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if len(dialer.rooms) != 0 {
		t.Errorf("dialer was called %d times, want 0", len(dialer.rooms))
	}
}

func TestHandleRoomSkipsTerminalSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, &rtmock.Provider{})
	if _, err := h.store.FinalizeSession(context.Background(), h.sess.ID, coach.NoDataReport()); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	h.runner.HandleRoom(context.Background(), broker.RoomName(h.sess.ID))

	h.dialer.mu.Lock()
	defer h.dialer.mu.Unlock()
	if len(h.dialer.rooms) != 0 {
		t.Errorf("dialer was called %d times, want 0", len(h.dialer.rooms))
	}
}

func TestAgentInstructionsMentionContract(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4, &rtmock.Provider{})
	done := h.run(context.Background())
	h.session(t)

	waitFor(t, func() bool { return h.voice.SessionCount() == 1 })
	instr := h.voice.Config(0).Instructions
	for _, want := range []string{"Backend Engineer", "mid", "exactly 4 questions", "Thank you for completing"} {
		if !containsFold(instr, want) {
			t.Errorf("instructions missing %q", want)
		}
	}

	h.room.events <- broker.Event{Type: broker.EventParticipantDisconnected}
	awaitDone(t, done)
}

// containsFold is a case-insensitive substring check.
func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
