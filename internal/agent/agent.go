// Package agent runs the per-session interview worker.
//
// One Agent instance serves exactly one session. The broker dispatches it
// when a participant joins the session's room; it drives the spoken interview
// through a realtime voice session, captures the transcript, snapshots it
// periodically, and finalizes the session when the interview completes or the
// participant leaves.
//
// The agent is a single-threaded cooperative task: room events, model audio,
// transcript commits, and the snapshot ticker all arrive on one select loop,
// so the in-memory transcript needs no locking.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/intervox/intervox/internal/broker"
	"github.com/intervox/intervox/internal/finalizer"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/store"
	"github.com/intervox/intervox/pkg/interview"
	"github.com/intervox/intervox/pkg/provider/realtime"
)

// State is the agent's lifecycle phase.
type State string

const (
	StateConnecting State = "connecting"
	StateGreeting   State = "greeting"
	StateAsking     State = "asking"
	StateListening  State = "listening"
	StateEvaluating State = "evaluating"
	StateClosing    State = "closing"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// DefaultClosingPhrases are the assistant-utterance markers that signal the
// interview has concluded. Matched case-insensitively as substrings.
var DefaultClosingPhrases = []string{
	"thank you for completing",
	"that concludes",
	"wraps up",
}

const (
	// DefaultSnapshotInterval is the period between transcript snapshots.
	DefaultSnapshotInterval = 30 * time.Second

	// DefaultConnectTimeout bounds room and voice session establishment.
	DefaultConnectTimeout = 30 * time.Second

	// shutdownSnapshotTimeout bounds the final snapshot and finalize when
	// the agent's context is cancelled.
	shutdownSnapshotTimeout = 5 * time.Second
)

// Room is the agent's view of its session room: inbound events plus an audio
// publish sink. Satisfied by [broker.RoomConn].
type Room interface {
	Events() <-chan broker.Event
	PublishAudio(chunk []byte) error
	Close() error
}

// RoomDialer joins rooms on behalf of agents.
type RoomDialer interface {
	ConnectRoom(ctx context.Context, room string) (Room, error)
}

// brokerDialer adapts [broker.Broker] to the [RoomDialer] interface.
type brokerDialer struct {
	b *broker.Broker
}

func (d brokerDialer) ConnectRoom(ctx context.Context, room string) (Room, error) {
	return d.b.ConnectRoom(ctx, room)
}

// NewBrokerDialer wraps b as a [RoomDialer].
func NewBrokerDialer(b *broker.Broker) RoomDialer {
	return brokerDialer{b: b}
}

// ─── Runner ───────────────────────────────────────────────────────────────────

// Runner spawns one Agent per dispatched room. Its HandleRoom method is
// wired as the [broker.JobHandler] of the dispatch worker.
type Runner struct {
	store     store.Store
	finalizer *finalizer.Finalizer
	dialer    RoomDialer
	voice     realtime.Provider

	voiceName        string
	snapshotInterval time.Duration
	connectTimeout   time.Duration
	closingPhrases   []string
	metrics          *observe.Metrics
	log              *slog.Logger
}

// config holds optional Runner configuration.
type config struct {
	voiceName        string
	snapshotInterval time.Duration
	connectTimeout   time.Duration
	closingPhrases   []string
	metrics          *observe.Metrics
	log              *slog.Logger
}

// Option is a functional option for Runner.
type Option func(*config)

// WithVoice selects the synthesised voice passed to the realtime provider.
func WithVoice(name string) Option {
	return func(c *config) { c.voiceName = name }
}

// WithSnapshotInterval overrides the transcript snapshot period.
func WithSnapshotInterval(d time.Duration) Option {
	return func(c *config) { c.snapshotInterval = d }
}

// WithConnectTimeout overrides the room/voice connect deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) { c.connectTimeout = d }
}

// WithClosingPhrases overrides the closing-phrase list. Empty entries are
// ignored; an effectively empty list keeps the defaults.
func WithClosingPhrases(phrases []string) Option {
	return func(c *config) {
		cleaned := make([]string, 0, len(phrases))
		for _, p := range phrases {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			c.closingPhrases = cleaned
		}
	}
}

// WithMetrics attaches the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets the agent logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// NewRunner creates a Runner. voice may be nil; agents then run muted,
// capturing user utterances from room text events only, and still
// snapshotting and finalizing on disconnect.
func NewRunner(st store.Store, fin *finalizer.Finalizer, dialer RoomDialer, voice realtime.Provider, opts ...Option) *Runner {
	cfg := &config{
		snapshotInterval: DefaultSnapshotInterval,
		connectTimeout:   DefaultConnectTimeout,
		closingPhrases:   DefaultClosingPhrases,
		log:              slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = observe.DefaultMetrics()
	}
	return &Runner{
		store:            st,
		finalizer:        fin,
		dialer:           dialer,
		voice:            voice,
		voiceName:        cfg.voiceName,
		snapshotInterval: cfg.snapshotInterval,
		connectTimeout:   cfg.connectTimeout,
		closingPhrases:   cfg.closingPhrases,
		metrics:          cfg.metrics,
		log:              cfg.log,
	}
}

// HandleRoom serves one dispatched room to completion. Satisfies
// [broker.JobHandler]. Errors are logged, not returned: a failed agent must
// not take down the dispatch worker.
func (r *Runner) HandleRoom(ctx context.Context, room string) {
	sessionID, ok := broker.SessionIDFromRoom(room)
	if !ok {
		r.log.Warn("dispatched room does not map to a session", "room", room)
		return
	}

	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		r.log.Error("agent: load session", "session_id", sessionID, "error", err)
		return
	}
	if sess.Status != interview.StatusActive {
		r.log.Info("agent: session already terminal, ignoring dispatch",
			"session_id", sessionID, "status", string(sess.Status))
		return
	}

	a := &Agent{
		runner: r,
		sess:   sess,
		room:   room,
		state:  StateConnecting,
		log:    r.log.With("session_id", sessionID, "room", room),
	}
	a.Run(ctx)
}

// ─── Agent ────────────────────────────────────────────────────────────────────

// Agent drives one interview session from dispatch to finalization.
type Agent struct {
	runner *Runner
	sess   interview.Session
	room   string
	log    *slog.Logger

	state          State
	transcript     []interview.TranscriptEntry
	questionsAsked int
}

// State returns the agent's current lifecycle phase. Only meaningful after
// Run returns; the loop mutates it without locking.
func (a *Agent) State() State { return a.state }

func (a *Agent) transition(to State) {
	if a.state == to {
		return
	}
	a.log.Debug("agent state", "from", string(a.state), "to", string(to))
	a.state = to
}

// Run executes the agent to completion. Blocking; returns when the session is
// finalized, the participant disconnects, or ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	start := time.Now()
	a.runner.metrics.ActiveAgents.Add(ctx, 1)
	defer func() {
		a.runner.metrics.ActiveAgents.Add(context.Background(), -1)
		a.runner.metrics.AgentSessionDuration.Record(context.Background(), time.Since(start).Seconds())
	}()

	connectCtx, cancel := context.WithTimeout(ctx, a.runner.connectTimeout)
	room, voice, err := a.connect(connectCtx)
	cancel()
	if err != nil {
		a.log.Error("agent connect failed", "error", err)
		a.transition(StateFailed)
		return
	}
	defer room.Close()
	defer voice.Close()

	a.transition(StateGreeting)
	if err := voice.Say(a.greetingLine()); err != nil {
		a.log.Warn("greeting failed", "error", err)
	}

	a.loop(ctx, room, voice)
}

// connect joins the room and opens the voice session. A missing or failing
// realtime provider degrades to a mute session rather than aborting, so the
// room connection still yields the disconnect events that drive snapshots and
// finalize.
func (a *Agent) connect(ctx context.Context) (Room, realtime.SessionHandle, error) {
	room, err := a.runner.dialer.ConnectRoom(ctx, a.room)
	if err != nil {
		return nil, nil, fmt.Errorf("agent: join room: %w", err)
	}

	if a.runner.voice == nil {
		a.log.Info("no realtime voice provider, running muted")
		return room, newMuteSession(), nil
	}

	voice, err := a.runner.voice.Connect(ctx, realtime.SessionConfig{
		Voice:        a.runner.voiceName,
		Instructions: a.instructions(),
	})
	if err != nil {
		a.log.Error("realtime voice connect failed, running muted", "error", err)
		return room, newMuteSession(), nil
	}
	return room, voice, nil
}

// loop is the agent's single event loop. All transcript mutation happens
// here.
func (a *Agent) loop(ctx context.Context, room Room, voice realtime.SessionHandle) {
	ticker := time.NewTicker(a.runner.snapshotInterval)
	defer ticker.Stop()

	roomEvents := room.Events()
	voiceAudio := voice.Audio()
	voiceTranscripts := voice.Transcripts()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return

		case evt, ok := <-roomEvents:
			if !ok {
				a.log.Info("room connection closed")
				a.onDisconnect(ctx)
				return
			}
			switch evt.Type {
			case broker.EventParticipantJoined:
				a.log.Info("participant joined", "participant", evt.Participant)
			case broker.EventParticipantDisconnected:
				a.log.Info("participant disconnected", "participant", evt.Participant)
				a.onDisconnect(ctx)
				return
			case broker.EventAudioFrame:
				if err := voice.SendAudio(evt.Audio); err != nil {
					a.log.Warn("forward audio to voice session", "error", err)
				}
			case broker.EventUserText:
				// Data-channel utterances feed the transcript directly. This
				// is the only transcript source when the agent runs muted.
				if done := a.onTranscript(ctx, realtime.Event{
					Role: interview.RoleUser,
					Text: evt.Text,
				}, voice); done {
					return
				}
			}

		case chunk, ok := <-voiceAudio:
			if !ok {
				voiceAudio = nil
				continue
			}
			if err := room.PublishAudio(chunk); err != nil {
				a.log.Warn("publish audio to room", "error", err)
			}

		case evt, ok := <-voiceTranscripts:
			if !ok {
				// The voice session ended; keep serving room events so a
				// later disconnect still snapshots and finalizes.
				if err := voice.Err(); err != nil {
					a.log.Error("voice session terminated", "error", err)
				}
				voiceTranscripts = nil
				continue
			}
			if done := a.onTranscript(ctx, evt, voice); done {
				return
			}

		case <-ticker.C:
			a.snapshot(ctx)
		}
	}
}

// onTranscript appends the committed utterance and advances the state
// machine. Returns true when the agent has finalized and should exit.
func (a *Agent) onTranscript(ctx context.Context, evt realtime.Event, voice realtime.SessionHandle) bool {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	a.transcript = append(a.transcript, interview.TranscriptEntry{
		Role:      evt.Role,
		Text:      evt.Text,
		Timestamp: ts,
	})
	a.runner.metrics.RecordUtterance(ctx, string(evt.Role))

	switch evt.Role {
	case interview.RoleUser:
		if a.state == StateListening {
			a.transition(StateEvaluating)
		}
		// The question-count condition is authoritative; it fires once the
		// final answer is in. The phrase match below is the safety net for
		// models that conclude early on their own.
		if a.questionsAsked >= a.sess.NumQuestions && a.state != StateClosing {
			a.transition(StateClosing)
			if err := voice.Say(a.closingLine()); err != nil {
				a.log.Warn("closing line failed, finalizing directly", "error", err)
				a.finalize(ctx)
				return true
			}
		}
		return false

	case interview.RoleAssistant:
		// Closing-phrase match ends the interview whether the model spoke
		// the line on its own or in response to the agent's closing Say.
		// Once the agent is already closing, any committed assistant
		// utterance counts as the close even if the configured phrases were
		// customised.
		if a.state == StateClosing || a.matchesClosingPhrase(evt.Text) {
			a.finalize(ctx)
			return true
		}

		if strings.Contains(evt.Text, "?") {
			a.questionsAsked++
			a.transition(StateAsking)
			a.transition(StateListening)
		} else if a.state == StateGreeting {
			a.transition(StateAsking)
		}
		return false
	}
	return false
}

// matchesClosingPhrase reports whether text contains any configured closing
// phrase, case-insensitively.
func (a *Agent) matchesClosingPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range a.runner.closingPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// snapshot persists the current transcript. Failures are logged, never fatal.
func (a *Agent) snapshot(ctx context.Context) {
	if len(a.transcript) == 0 {
		return
	}
	entries := slices.Clone(a.transcript)
	if err := a.runner.finalizer.PersistPartialTranscript(ctx, a.sess.ID, entries, a.questionsAsked); err != nil {
		a.log.Error("transcript snapshot failed", "error", err)
		a.runner.metrics.SnapshotFailures.Add(ctx, 1)
	}
}

// finalize snapshots the transcript and commits the session's report.
func (a *Agent) finalize(ctx context.Context) {
	a.transition(StateFinalizing)
	a.snapshot(ctx)

	report, err := a.runner.finalizer.Finalize(ctx, a.sess.ID)
	if err != nil {
		a.log.Error("finalize failed", "error", err)
		a.transition(StateFailed)
		return
	}
	a.runner.metrics.RecordReport(ctx, string(report.GeneratedBy))
	a.log.Info("session finalized",
		"overall_score", report.OverallScore,
		"generated_by", string(report.GeneratedBy),
		"questions_asked", a.questionsAsked)
	a.transition(StateDone)
}

// onDisconnect is the durability path for user-initiated early exits: it
// snapshots, finalizes if any transcript exists, and lets the agent exit.
func (a *Agent) onDisconnect(ctx context.Context) {
	a.snapshot(ctx)
	if len(a.transcript) == 0 {
		a.log.Info("participant left before speaking, leaving session active")
		return
	}
	a.finalize(ctx)
}

// shutdown handles context cancellation: one final snapshot and finalize
// under a short deadline so a worker drain does not lose the interview.
func (a *Agent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSnapshotTimeout)
	defer cancel()

	a.snapshot(ctx)
	if len(a.transcript) > 0 {
		a.finalize(ctx)
	}
}

// greetingLine is the fixed welcome utterance.
func (a *Agent) greetingLine() string {
	return fmt.Sprintf("Hello, and welcome to your mock interview for the %s position. I'll ask you %d questions; answer each one as you would in a real interview. Let's begin.",
		a.sess.JobTitle, a.sess.NumQuestions)
}

// closingLine is the fixed thank-you utterance. It contains a default closing
// phrase so its transcript commit triggers finalization.
func (a *Agent) closingLine() string {
	return "Thank you for completing the interview. That concludes our session; you will receive your feedback report shortly."
}

// instructions builds the static system prompt for the realtime model.
func (a *Agent) instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional job interviewer conducting a spoken mock interview for a %s %s position.\n",
		a.sess.Seniority, a.sess.JobTitle)
	fmt.Fprintf(&b, "Conduct the interview in the language with tag %q.\n", a.sess.Language)
	fmt.Fprintf(&b, "You must ask exactly %d questions, one at a time, waiting for the candidate's full answer before moving on.\n",
		a.sess.NumQuestions)
	b.WriteString("Mix technical, behavioral, and situational questions appropriate to the role and seniority.\n")
	b.WriteString("Do not evaluate or coach during the interview; stay in character as the interviewer.\n")
	fmt.Fprintf(&b, "After the final answer, end the interview by saying: %q.\n", a.closingLine())
	return b.String()
}
