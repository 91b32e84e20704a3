// Package broker adapts the external real-time audio/video broker.
//
// The core needs exactly three things from the broker: signed room tokens
// for participants ([Broker.MintRoomToken]), the agent dispatch stream
// ([Worker]), and per-room event/audio plumbing ([RoomConn]). Room names
// encode the session id, which is the sole coupling between the API surface
// that mints credentials and the agent that later joins the room.
package broker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoomPrefix prefixes every interview room name.
const RoomPrefix = "interview-"

// DispatchPattern is the room-name pattern the broker's dispatch rule is
// registered with out-of-band. Rooms matching it spawn one agent instance.
const DispatchPattern = RoomPrefix + "*"

// DefaultTokenTTL is the lifetime of minted room tokens. Revocation relies
// solely on expiry.
const DefaultTokenTTL = 2 * time.Hour

// ErrNotConfigured is returned when broker operations are attempted without
// broker credentials. Callers treat it as a non-fatal "video unavailable"
// condition; sessions still work in text mode.
var ErrNotConfigured = errors.New("broker: not configured")

// RoomName returns the room name for a session id.
func RoomName(sessionID string) string {
	return RoomPrefix + sessionID
}

// SessionIDFromRoom extracts the session id from a room name. ok is false
// when the room does not belong to an interview.
func SessionIDFromRoom(room string) (string, bool) {
	id, found := strings.CutPrefix(room, RoomPrefix)
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// Config holds the broker connection settings.
type Config struct {
	// URL is the broker's WebSocket endpoint, e.g. wss://broker.example.com.
	URL string

	// APIKey and APISecret authenticate this deployment with the broker.
	// The key doubles as the token issuer; the secret signs tokens.
	APIKey    string
	APISecret string

	// TokenTTL overrides [DefaultTokenTTL] when positive.
	TokenTTL time.Duration
}

// Broker mints room credentials and opens room connections.
type Broker struct {
	url    string
	apiKey string
	secret []byte
	ttl    time.Duration
}

// New creates a Broker from cfg. An incomplete cfg yields a broker whose
// operations return [ErrNotConfigured]; construction itself never fails so
// that text-only deployments need no special casing.
func New(cfg Config) *Broker {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Broker{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		secret: []byte(cfg.APISecret),
		ttl:    ttl,
	}
}

// Configured reports whether the broker has a full set of credentials.
func (b *Broker) Configured() bool {
	return b != nil && b.url != "" && b.apiKey != "" && len(b.secret) > 0
}

// URL returns the broker endpoint clients should connect to.
func (b *Broker) URL() string { return b.url }

// Credentials is a minted room credential. The token is a signed JWT; the
// core never inspects its interior after minting.
type Credentials struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"room_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// videoGrant is the room access claim embedded in the token.
type videoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// MintRoomToken signs a room token for the given session and participant
// identity, granting publish and subscribe on the session's room.
func (b *Broker) MintRoomToken(sessionID, identity string) (Credentials, error) {
	if !b.Configured() {
		return Credentials{}, ErrNotConfigured
	}
	if sessionID == "" || identity == "" {
		return Credentials{}, fmt.Errorf("broker: mint token: session id and identity must not be empty")
	}

	room := RoomName(sessionID)
	now := time.Now()
	exp := now.Add(b.ttl)

	tok, err := jwt.NewBuilder().
		Issuer(b.apiKey).
		Subject(identity).
		IssuedAt(now).
		NotBefore(now).
		Expiration(exp).
		Claim("name", identity).
		Claim("video", videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		}).
		Build()
	if err != nil {
		return Credentials{}, fmt.Errorf("broker: build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, b.secret))
	if err != nil {
		return Credentials{}, fmt.Errorf("broker: sign token: %w", err)
	}

	return Credentials{
		Token:     string(signed),
		RoomName:  room,
		URL:       b.url,
		ExpiresAt: exp,
	}, nil
}

// mintAgentToken signs the token the dispatch worker and agents use. It
// carries the agent claim instead of a single-room grant.
func (b *Broker) mintAgentToken(room string) (string, error) {
	if !b.Configured() {
		return "", ErrNotConfigured
	}

	now := time.Now()
	builder := jwt.NewBuilder().
		Issuer(b.apiKey).
		Subject("intervox-agent").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(b.ttl)).
		Claim("agent", true)
	if room != "" {
		builder = builder.Claim("video", videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("broker: build agent token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, b.secret))
	if err != nil {
		return "", fmt.Errorf("broker: sign agent token: %w", err)
	}
	return string(signed), nil
}
