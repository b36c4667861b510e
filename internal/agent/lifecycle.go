// Package agent implements the Shutdown / Lifecycle component (§2, §5):
// the coordinated stop sequence that surrenders any active game, notifies
// the optional external streaming session, then clears every timer and
// per-operation breaker/retry-delay state, in that order.
package agent

import (
	"context"

	"cardagent/internal/logging"
)

// PollingEngine is the subset of polling.Engine the lifecycle coordinator
// drives. polling.Engine satisfies this directly.
type PollingEngine interface {
	IsPolling() bool
	CurrentGameID() string
	StreamingSessionID() string
	Stop()
}

// APIClient is the subset of apiclient.Client used to surrender an active
// game and notify its streaming session on shutdown.
type APIClient interface {
	Surrender(ctx context.Context, gameID string) error
	EmitAgentEvent(ctx context.Context, gameID, eventType string, fields map[string]interface{}) error
}

// Breaker is the subset of breaker.Breaker cleared on shutdown.
type Breaker interface {
	ResetAll()
}

// History is the subset of history.History cleared on shutdown.
type History interface {
	ClearAll()
}

// Lifecycle coordinates process shutdown for the agent runtime.
type Lifecycle struct {
	engine  PollingEngine
	api     APIClient
	breaker Breaker
	history History
}

// New wires a Lifecycle coordinator. Any dependency may be nil; Shutdown
// skips the steps it can't perform.
func New(engine PollingEngine, api APIClient, br Breaker, hist History) *Lifecycle {
	return &Lifecycle{engine: engine, api: api, breaker: br, history: hist}
}

// Shutdown runs the coordinated stop in the order §5 mandates: surrender
// any active game (best-effort), notify its streaming session
// (best-effort), then clear timers, then clear circuit breakers/retry
// delays and decision history.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	logging.Lifecycle("shutdown: beginning coordinated stop")

	if l.engine != nil && l.engine.IsPolling() && l.api != nil {
		gameID := l.engine.CurrentGameID()
		if gameID != "" {
			if err := l.api.Surrender(ctx, gameID); err != nil {
				logging.LifecycleWarn("shutdown: surrender of game %s failed: %v", gameID, err)
			} else {
				logging.Lifecycle("shutdown: surrendered game %s", gameID)
			}

			if sessionID := l.engine.StreamingSessionID(); sessionID != "" {
				fields := map[string]interface{}{"streaming_session_id": sessionID, "reason": "agent_shutdown"}
				if err := l.api.EmitAgentEvent(ctx, gameID, "agent_shutdown", fields); err != nil {
					logging.LifecycleWarn("shutdown: streaming session notify failed: %v", err)
				}
			}
		}
	}

	if l.engine != nil {
		l.engine.Stop()
		logging.Lifecycle("shutdown: timers cleared")
	}

	if l.breaker != nil {
		l.breaker.ResetAll()
	}
	if l.history != nil {
		l.history.ClearAll()
	}
	logging.Lifecycle("shutdown: breaker and history state cleared")
}
