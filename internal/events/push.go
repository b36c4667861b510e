package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"cardagent/internal/types"
)

// freshnessWindow is how far in the past a pushed event's timestamp may be
// before it is rejected as stale (§4.5 push path).
const freshnessWindow = 5 * time.Minute

// idempotencyTTL is how long an accepted (game_id, timestamp, event_type)
// key is remembered before it may be accepted again.
const idempotencyTTL = 10 * time.Minute

// WebhookPayload mirrors the inbound push contract (§6).
type WebhookPayload struct {
	EventType string                 `json:"event_type"`
	GameID    string                 `json:"game_id"`
	AgentID   string                 `json:"agent_id"`
	Timestamp time.Time              `json:"timestamp"`
	Signature string                 `json:"signature"`
	Data      map[string]interface{} `json:"data"`
}

// IdempotencyGuard holds the set of recently-accepted push keys and rejects
// replays and stale timestamps (§4.5, §8 invariant 10).
type IdempotencyGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

// NewIdempotencyGuard creates a guard with the standard 10-minute TTL.
func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{
		seen:  make(map[string]time.Time),
		ttl:   idempotencyTTL,
		clock: time.Now,
	}
}

func idempotencyKey(gameID string, ts time.Time, eventType string) string {
	return fmt.Sprintf("%s|%d|%s", gameID, ts.UnixNano(), eventType)
}

// CheckAndRecord returns nil when the payload passes freshness and
// idempotency checks, recording its key. It returns types.ErrReplayOrStale
// for a timestamp outside the freshness window or in the future, and for a
// key already accepted within the TTL. Expired entries are swept
// opportunistically.
func (g *IdempotencyGuard) CheckAndRecord(p WebhookPayload) error {
	now := g.clock()

	if p.Timestamp.Before(now.Add(-freshnessWindow)) || p.Timestamp.After(now) {
		return types.ErrReplayOrStale
	}

	key := idempotencyKey(p.GameID, p.Timestamp, p.EventType)

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, seenAt := range g.seen {
		if now.Sub(seenAt) > g.ttl {
			delete(g.seen, k)
		}
	}

	if _, dup := g.seen[key]; dup {
		return types.ErrReplayOrStale
	}
	g.seen[key] = now
	return nil
}

// VerifySignature checks the HMAC-SHA256 signature of a raw webhook body
// against the configured secret, using a constant-time comparison (§9: the
// real variant, not the stub). An empty secret disables verification and
// always succeeds, matching an operator choosing not to configure one.
func VerifySignature(secret string, rawBody []byte, signatureHex string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}
