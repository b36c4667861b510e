package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// gatherContext fetches game state, available actions, and recent history
// in parallel (§4.6.1). A history fetch failure degrades to an empty
// slice rather than failing the whole gather, since the prompt can do
// without it; state and actions failures are fatal to the iteration.
func (o *Orchestrator) gatherContext(ctx context.Context, gameID string, failed []FailedAction) (*TurnContext, error) {
	var state = new(stateHolder)
	var actionsHolder = new(actionsHolder)
	var hist []string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.breaker.Execute(gctx, o.opName("get_game_state", gameID), func(c context.Context) error {
			s, err := o.api.GetGameState(c, gameID)
			if err != nil {
				return err
			}
			state.v = s
			return nil
		})
	})

	g.Go(func() error {
		return o.breaker.Execute(gctx, o.opName("get_available_actions", gameID), func(c context.Context) error {
			a, err := o.api.GetAvailableActions(c, gameID)
			if err != nil {
				return err
			}
			actionsHolder.v = a
			return nil
		})
	})

	g.Go(func() error {
		err := o.breaker.Execute(gctx, o.opName("get_game_history", gameID), func(c context.Context) error {
			h, err := o.api.GetGameHistory(c, gameID)
			if err != nil {
				return err
			}
			hist = h
			return nil
		})
		if err != nil {
			logging.OrchestratorDebug("game_history fetch failed for %s, continuing with empty history: %v", gameID, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if state.v == nil || actionsHolder.v == nil {
		return nil, context.Canceled
	}

	return &TurnContext{
		GameID:        gameID,
		State:         state.v,
		Actions:       actionsHolder.v,
		History:       hist,
		FailedActions: failed,
	}, nil
}

type stateHolder struct{ v *types.GameStateFull }
type actionsHolder struct{ v *types.AvailableActions }
