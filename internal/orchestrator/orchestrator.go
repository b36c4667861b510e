package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cardagent/internal/config"
	"cardagent/internal/decision"
	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// state is the per-game execution state machine of §4.6.6.
type state int32

const (
	stateIdle state = iota
	stateExecuting
	stateChainResponding
)

// Orchestrator drives the bounded turn loop for a single agent (one game
// in flight at a time; §5 forbids overlapping turns for the same agent).
type Orchestrator struct {
	api     APIClient
	breaker Breaker
	history History
	model   decision.Source
	cfg     config.TurnConfig

	st int32 // atomic state
}

// New wires an Orchestrator. model may be nil, in which case every
// decision falls straight through to the deterministic fallback selector.
func New(api APIClient, br Breaker, hist History, model decision.Source, cfg config.TurnConfig) *Orchestrator {
	return &Orchestrator{api: api, breaker: br, history: hist, model: model, cfg: cfg, st: int32(stateIdle)}
}

// opName builds the per-operation, per-game circuit breaker key.
func (o *Orchestrator) opName(op, gameID string) string {
	return fmt.Sprintf("orchestrator_%s_%s", op, gameID)
}

// tryEnter attempts the idle->target transition, returning false if the
// orchestrator is already busy with any game (§5's re-entry guard: a
// trigger arriving while a turn or chain response is in flight is dropped,
// not queued).
func (o *Orchestrator) tryEnter(target state) bool {
	return atomic.CompareAndSwapInt32(&o.st, int32(stateIdle), int32(target))
}

func (o *Orchestrator) leave() {
	atomic.StoreInt32(&o.st, int32(stateIdle))
}

// OnTurnStarted runs the bounded action loop for one of the agent's own
// turns (§4.6). It is safe to call concurrently; a call arriving while a
// previous turn for the same orchestrator is still executing is rejected.
func (o *Orchestrator) OnTurnStarted(ctx context.Context, gameID string) error {
	if !o.tryEnter(stateExecuting) {
		logging.OrchestratorWarn("turn trigger for game %s dropped: orchestrator busy", gameID)
		return fmt.Errorf("orchestrator busy for game %s", gameID)
	}
	defer o.leave()

	start := time.Now()
	actionsTaken, turnNumber, err := o.runTurnLoop(ctx, gameID)
	logging.Audit().TurnEnd(gameID, turnNumber, actionsTaken, time.Since(start).Milliseconds(), err == nil)
	return err
}

// runTurnLoop implements §4.6.6's idle->executing->idle cycle: gather
// context, decide, enforce legality, execute, record, repeat until
// END_TURN, the action cap, the consecutive-failure cap, it stops being
// the agent's turn, or the game ends.
func (o *Orchestrator) runTurnLoop(ctx context.Context, gameID string) (actionsTaken int, turnNumber int, err error) {
	var failed []FailedAction
	var consecutiveFailures int
	var modelCallsUsed int
	loggedTurnStart := false

	for actionsTaken < o.cfg.MaxActionsPerTurn {
		tc, gerr := o.gatherContext(ctx, gameID, failed)
		if gerr != nil {
			return actionsTaken, turnNumber, fmt.Errorf("gather context: %w", gerr)
		}
		turnNumber = tc.State.TurnNumber

		if tc.State.Status == types.StatusCompleted {
			return actionsTaken, turnNumber, nil
		}
		if !tc.State.IsMyTurn {
			return actionsTaken, turnNumber, nil
		}
		if !loggedTurnStart {
			logging.Audit().TurnStart(gameID, turnNumber)
			loggedTurnStart = true
		}

		legal := legalActionSet(tc.Actions, turnNumber)
		d, usedModel := o.decide(ctx, tc, legal, modelCallsUsed)
		if usedModel {
			modelCallsUsed++
		}

		execStart := time.Now()
		execErr := o.execute(ctx, gameID, tc.State, d)
		elapsedMS := time.Since(execStart).Milliseconds()

		rec := types.Decision{
			ID:              uuid.NewString(),
			Timestamp:       time.Now(),
			TurnNumber:      turnNumber,
			Phase:           tc.State.Phase,
			Action:          d.Action,
			Reasoning:       d.Reasoning,
			Parameters:      d.Parameters,
			ExecutionTimeMS: elapsedMS,
			Source:          d.Source,
		}

		if execErr != nil {
			rec.Result = types.ResultFailed
			consecutiveFailures++
			failed = append(failed, FailedAction{Action: d.Action, Reason: execErr.Error()})
			logging.OrchestratorDebug("action %s failed for game %s: %v", d.Action, gameID, execErr)
			logging.Audit().ActionResult(gameID, string(d.Action), elapsedMS, false, execErr.Error())
		} else {
			rec.Result = types.ResultSuccess
			consecutiveFailures = 0
			logging.Audit().ActionResult(gameID, string(d.Action), elapsedMS, true, "")
		}

		o.history.Record(ctx, gameID, rec)
		actionsTaken++

		if execErr == nil && d.Action == types.ActionEndTurn {
			return actionsTaken, turnNumber, nil
		}
		if consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
			logging.OrchestratorWarn("game %s: %d consecutive action failures, forcing end_turn", gameID, consecutiveFailures)
			o.forceEndTurn(ctx, gameID, turnNumber, &actionsTaken)
			return actionsTaken, turnNumber, nil
		}

		delay := time.Duration(o.cfg.ActionLoopDelayMS) * time.Millisecond
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return actionsTaken, turnNumber, ctx.Err()
		case <-timer.C:
		}
	}

	logging.OrchestratorWarn("game %s: reached max actions per turn (%d), forcing end_turn", gameID, o.cfg.MaxActionsPerTurn)
	o.forceEndTurn(ctx, gameID, turnNumber, &actionsTaken)
	return actionsTaken, turnNumber, nil
}

// forceEndTurn executes END_TURN outside the normal decision pipeline when
// the consecutive-failure or action-cap limit is hit (§4.6.4, §4.6).
func (o *Orchestrator) forceEndTurn(ctx context.Context, gameID string, turnNumber int, actionsTaken *int) {
	execStart := time.Now()
	err := o.breaker.Execute(ctx, o.opName("end_turn", gameID), func(c context.Context) error {
		return o.api.EndTurn(c, gameID)
	})
	elapsedMS := time.Since(execStart).Milliseconds()

	o.history.Record(ctx, gameID, types.Decision{
		ID:              uuid.NewString(),
		Timestamp:       time.Now(),
		TurnNumber:      turnNumber,
		Action:          types.ActionEndTurn,
		Reasoning:       "forced end turn after exhausting failure/action budget",
		Result:          resultFor(err),
		ExecutionTimeMS: elapsedMS,
		Source:          types.SourceFallback,
	})
	*actionsTaken++
	logging.Audit().ActionResult(gameID, string(types.ActionEndTurn), elapsedMS, err == nil, errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// OnChainWaiting handles a single chain-response opportunity (§4.6.5): read
// current state, enumerate chainable hand spells and own-backrow set traps,
// and pass immediately if none exist. Only when something is chainable, and
// model chain decisions are enabled, is at most one model-backed decision
// consulted; the model's card choice is discarded (and the response passes)
// unless it names a card actually in the chainable set.
func (o *Orchestrator) OnChainWaiting(ctx context.Context, gameID string) error {
	if !o.tryEnter(stateChainResponding) {
		logging.OrchestratorWarn("chain trigger for game %s dropped: orchestrator busy", gameID)
		return fmt.Errorf("orchestrator busy for game %s", gameID)
	}
	defer o.leave()

	pass := true
	cardID := ""

	var state *types.GameStateFull
	stateErr := o.breaker.Execute(ctx, o.opName("get_game_state", gameID), func(c context.Context) error {
		s, err := o.api.GetGameState(c, gameID)
		if err != nil {
			return err
		}
		state = s
		return nil
	})

	if stateErr != nil {
		logging.OrchestratorDebug("chain state fetch failed for %s, passing: %v", gameID, stateErr)
	} else {
		chainable := chainableCards(state)
		if len(chainable) > 0 && o.model != nil && o.cfg.ModelChainDecisions {
			prompt := fmt.Sprintf("Game %s is waiting on a chain response. Chainable card ids: %v. Respond with a single JSON object: {\"chain\": <bool>, \"card_id\": \"<id or empty>\"}", gameID, chainable)
			resp, err := o.model.DecideChain(ctx, prompt)
			if err != nil {
				logging.OrchestratorDebug("chain decision failed for %s, passing: %v", gameID, err)
				logging.Audit().DecisionFallback(gameID, err.Error())
			} else if resp.Chain && containsID(chainable, resp.CardID) {
				pass = false
				cardID = resp.CardID
			} else if resp.Chain {
				logging.OrchestratorDebug("chain decision for %s named non-chainable card %q, passing", gameID, resp.CardID)
			}
		}
	}

	err := o.breaker.Execute(ctx, o.opName("chain_response", gameID), func(c context.Context) error {
		return o.api.ChainResponse(c, gameID, pass, cardID)
	})

	action := types.ActionPassChain
	if !pass {
		action = types.ActionChainResponse
	}
	o.history.Record(ctx, gameID, types.Decision{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Action:     action,
		Reasoning:  "chain response decision",
		Parameters: map[string]interface{}{"card_id": cardID},
		Result:     resultFor(err),
		Source:     types.SourceFallback,
	})
	return err
}

func resultFor(err error) types.DecisionResult {
	if err != nil {
		return types.ResultFailed
	}
	return types.ResultSuccess
}
