// Package polling implements the Polling Engine (§4.4): three instances of
// the Adaptive Scheduler — game-state, discovery, matchmaking — each
// wrapped in the shared Circuit Breaker, driving the Event Deriver and
// handing control to the Turn Orchestrator on turn_started and
// chain_waiting.
package polling

import (
	"context"

	"cardagent/internal/apiclient"
	"cardagent/internal/types"
)

// APIClient is the subset of apiclient.Client the Polling Engine calls.
// apiclient.Client satisfies this directly.
type APIClient interface {
	GetGameState(ctx context.Context, gameID string) (*types.GameStateFull, error)
	GetPendingTurns(ctx context.Context) ([]apiclient.PendingTurn, error)
	GetLobbies(ctx context.Context, scope string) ([]apiclient.LobbySummary, error)
	JoinLobby(ctx context.Context, lobbyID, deckID string) (string, error)
	GetDecks(ctx context.Context) ([]apiclient.Deck, error)
	EmitAgentEvent(ctx context.Context, gameID, eventType string, fields map[string]interface{}) error
	CompleteStoryStage(ctx context.Context, stageID string, success bool) error
	QuickPlayStory(ctx context.Context, difficulty string) (apiclient.QuickPlayResult, error)
	Surrender(ctx context.Context, gameID string) error
}

// Breaker is the subset of breaker.Breaker the Polling Engine uses to wrap
// every API call it makes directly (the Turn Orchestrator wraps its own).
type Breaker interface {
	Execute(ctx context.Context, name string, op func(ctx context.Context) error) error
	ExecuteSilent(ctx context.Context, name string, op func(ctx context.Context) error) error
	Reset(name string)
}

// Orchestrator is the subset of orchestrator.Orchestrator the Polling
// Engine triggers on turn_started and chain_waiting (§4.5, §4.6.6).
type Orchestrator interface {
	OnTurnStarted(ctx context.Context, gameID string) error
	OnChainWaiting(ctx context.Context, gameID string) error
}

// StartOptions carries the optional linkage passed to StartPollingGame:
// a story stage id for auto-continuation and a streaming session id for
// the external result-notice publish on game end (§4.4).
type StartOptions struct {
	StageID            string
	StreamingSessionID string
}
