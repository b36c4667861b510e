// Package history implements the Decision History (§4.7): an in-memory
// ring of recorded decisions per game, capped at N=100, with a best-effort
// fire-and-forget persistence hook. Ownership is exclusive to the Turn
// Orchestrator; nothing else mutates it.
package history

import (
	"context"
	"sync"

	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// Cap is the maximum number of decisions retained per game.
const Cap = 100

// Persister is the fire-and-forget backing store; usually apiclient.Client.
type Persister interface {
	SaveDecision(ctx context.Context, gameID string, d types.Decision) error
}

// History owns the per-game decision rings and an optional persister.
type History struct {
	mu     sync.Mutex
	rings  map[string][]types.Decision
	persist Persister
}

// New creates an empty History. persist may be nil, in which case Record
// only keeps the in-memory ring.
func New(persist Persister) *History {
	return &History{
		rings:   make(map[string][]types.Decision),
		persist: persist,
	}
}

// Record appends d to gameID's ring, trimming the oldest entry on overflow,
// then fires a best-effort persistence write. Persistence failures are
// logged at debug and never propagate (§4.7).
func (h *History) Record(ctx context.Context, gameID string, d types.Decision) {
	h.mu.Lock()
	ring := h.rings[gameID]
	ring = append(ring, d)
	if len(ring) > Cap {
		ring = ring[len(ring)-Cap:]
	}
	h.rings[gameID] = ring
	h.mu.Unlock()

	if h.persist == nil {
		return
	}
	if err := h.persist.SaveDecision(ctx, gameID, d); err != nil {
		logging.HistoryDebug("save_decision failed for game %s: %v", gameID, err)
		return
	}
	logging.Audit().DecisionSaved(gameID, string(d.Action))
}

// Get returns the most recent min(limit, stored) entries for gameID, in
// arrival order (oldest of the returned window first). limit<=0 defaults
// to 20 per §4.7's public read contract.
func (h *History) Get(gameID string, limit int) []types.Decision {
	if limit <= 0 {
		limit = 20
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ring := h.rings[gameID]
	if len(ring) <= limit {
		out := make([]types.Decision, len(ring))
		copy(out, ring)
		return out
	}
	out := make([]types.Decision, limit)
	copy(out, ring[len(ring)-limit:])
	return out
}

// Clear drops gameID's ring, used when a game ends.
func (h *History) Clear(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rings, gameID)
}

// ClearAll drops every ring, used on shutdown (§4.7).
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings = make(map[string][]types.Decision)
}
