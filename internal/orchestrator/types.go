// Package orchestrator implements the Turn Orchestrator (§4.6): the
// bounded, fail-tolerant action loop that gathers context, decides on an
// action via heuristics-first/model-second/fallback-third, enforces
// legality, executes, and records decision history.
package orchestrator

import (
	"context"

	"cardagent/internal/decision"
	"cardagent/internal/types"
)

// APIClient is the subset of apiclient.Client the orchestrator calls
// through the circuit breaker. apiclient.Client satisfies this directly.
type APIClient interface {
	GetGameState(ctx context.Context, gameID string) (*types.GameStateFull, error)
	GetAvailableActions(ctx context.Context, gameID string) (*types.AvailableActions, error)
	GetGameHistory(ctx context.Context, gameID string) ([]string, error)

	Summon(ctx context.Context, gameID, cardID string, tributeIDs []string) error
	SetMonster(ctx context.Context, gameID, cardID string, tributeIDs []string) error
	SetSpellTrap(ctx context.Context, gameID, cardID string) error
	ActivateSpell(ctx context.Context, gameID, cardID string) error
	Attack(ctx context.Context, gameID, attackerID, targetID string) error
	ChangePosition(ctx context.Context, gameID, cardID string) error
	FlipSummon(ctx context.Context, gameID, cardID string) error
	EnterBattlePhase(ctx context.Context, gameID string) error
	EnterMainPhase2(ctx context.Context, gameID string) error
	EndTurn(ctx context.Context, gameID string) error
	ChainResponse(ctx context.Context, gameID string, pass bool, cardID string) error
}

// Breaker is the subset of breaker.Breaker the orchestrator uses to wrap
// every API call.
type Breaker interface {
	Execute(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// History is the subset of history.History the orchestrator records into.
type History interface {
	Record(ctx context.Context, gameID string, d types.Decision)
}

// FailedAction is one action the orchestrator attempted and the server or
// a precondition rejected; carried forward into the next context so the
// model prompt can avoid retrying it (§4.6.4).
type FailedAction struct {
	Action types.CanonicalAction
	Reason string
}

// TurnContext is the compact, decision-ready view of a game built at the
// start of each loop iteration (§4.6.1).
type TurnContext struct {
	GameID        string
	State         *types.GameStateFull
	Actions       *types.AvailableActions
	History       []string
	FailedActions []FailedAction
}

// decided is the internal result of the two/three-tier decision policy
// before legality enforcement.
type decided struct {
	Action     types.CanonicalAction
	Reasoning  string
	Parameters map[string]interface{}
	Source     types.DecisionSource
}

// modelSource is the narrow interface orchestrator needs from decision.Source.
type modelSource = decision.Source
