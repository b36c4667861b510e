// Package events implements the Event Deriver (§4.5): a pure function from
// successive game snapshots to the domain event vocabulary, plus the
// idempotency and timestamp-freshness guards for the optional push path.
package events

import (
	"time"

	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// defaultChainTimeoutMS is the timeout annotated on a derived chain_waiting
// event when the full state carries none of its own.
const defaultChainTimeoutMS = 30000

// Derive computes the events implied by moving from prev to curr, given the
// full authoritative state observed alongside curr. prev is nil for the
// first poll of a game. Rule order follows §4.5 exactly; rules after a
// terminal emission (game_started, game_ended) are not evaluated.
func Derive(prev *types.GameSnapshot, curr types.GameSnapshot, full types.GameStateFull) []types.Event {
	now := time.Now()

	if prev == nil {
		started := types.Event{Kind: types.EventGameStarted, GameID: curr.GameID, Timestamp: now}
		out := []types.Event{started}
		if full.IsAgentTurn() {
			out = append(out, types.Event{Kind: types.EventTurnStarted, GameID: curr.GameID, Timestamp: now})
		}
		return out
	}

	if prev.Status != types.StatusCompleted && curr.Status == types.StatusCompleted {
		fields := map[string]interface{}{
			"winner": full.Winner,
			"reason": full.EndReason,
		}
		return []types.Event{{Kind: types.EventGameEnded, GameID: curr.GameID, Timestamp: now, Fields: fields}}
	}

	var out []types.Event

	if prev.TurnNumber != curr.TurnNumber || prev.CurrentTurnActor != curr.CurrentTurnActor {
		if full.IsAgentTurn() {
			out = append(out, types.Event{Kind: types.EventTurnStarted, GameID: curr.GameID, Timestamp: now})
		} else {
			out = append(out, types.Event{
				Kind: types.EventOpponentAction, GameID: curr.GameID, Timestamp: now,
				Fields: map[string]interface{}{"type": "turn_passed"},
			})
		}
	}

	if prev.Phase != curr.Phase {
		out = append(out, types.Event{Kind: types.EventPhaseChanged, GameID: curr.GameID, Timestamp: now})
	}

	if !prev.IsChainWaiting && curr.IsChainWaiting {
		timeoutMS := defaultChainTimeoutMS
		if full.ChainState != nil && full.ChainState.TimeoutMS > 0 {
			timeoutMS = full.ChainState.TimeoutMS
		}
		out = append(out, types.Event{
			Kind: types.EventChainWaiting, GameID: curr.GameID, Timestamp: now,
			Fields: map[string]interface{}{"timeout_ms": timeoutMS},
		})
	}

	return out
}

// Log records each derived event to the events category and audit trail,
// for callers that want a one-line integration point after Derive.
func Log(evts []types.Event) {
	for _, e := range evts {
		logging.EventsDebug("derived %s for game %s", e.Kind, e.GameID)
		logging.AuditWithGame(e.GameID).EventDerived(e.GameID, string(e.Kind))
	}
}
