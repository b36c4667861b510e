// Package aggregator implements the State Aggregator (§4.8): a read-only
// projection over the Polling Engine and Turn Orchestrator with a per-
// data-type TTL cache and hit/miss counters. It never mutates either
// collaborator and tolerates either being unavailable.
package aggregator

import (
	"context"

	"cardagent/internal/polling"
	"cardagent/internal/types"
)

// PollingEngine is the subset of polling.Engine the aggregator reads.
// polling.Engine satisfies this directly.
type PollingEngine interface {
	IsPolling() bool
	CurrentGameID() string
	GameMultiplier() float64
	DiscoveryMultiplier() float64
	MatchmakingMultiplier() float64
	HealthOK() bool
	MatchmakingSnapshot() polling.MatchmakingStats
	APIClient() polling.APIClient
}

// History is the subset of history.History the aggregator reads.
type History interface {
	Get(gameID string, limit int) []types.Decision
}

// MatchHistoryStats is the shape an external match-history source reports
// for one agent.
type MatchHistoryStats struct {
	GamesPlayed   int
	LobbiesJoined int
}

// MatchHistorySource is an optional external collaborator queried first by
// GetMetrics before falling back to the matchmaking counters (§4.8).
type MatchHistorySource interface {
	GetMatchHistory(ctx context.Context, agentID string) (MatchHistoryStats, error)
}

// ServiceUnavailable is returned when a cross-component lookup's
// collaborator is absent (§4.8: "returns null / throws a typed
// ServiceUnavailable, per method").
type ServiceUnavailable struct {
	Service string
}

func (e *ServiceUnavailable) Error() string { return "service unavailable: " + e.Service }
