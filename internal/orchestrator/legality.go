package orchestrator

import (
	"cardagent/internal/decision"
	"cardagent/internal/types"
)

// legalActionSet normalizes the server's available-actions list to the
// canonical vocabulary and strips ATTACK / ENTER_BATTLE_PHASE when
// turn_number <= 1, since the server's own available_actions does not
// always reflect the first-turn battle restriction (§4.6.2).
func legalActionSet(actions *types.AvailableActions, turnNumber int) map[types.CanonicalAction]types.ActionDescriptor {
	out := make(map[types.CanonicalAction]types.ActionDescriptor)
	if actions == nil {
		return out
	}

	for _, a := range actions.Actions {
		canon := decision.NormalizeActionName(a.ActionName)
		if canon == "" {
			continue
		}
		out[types.CanonicalAction(canon)] = a
	}

	if turnNumber <= 1 {
		delete(out, types.ActionAttack)
		delete(out, types.ActionEnterBattlePhase)
	}

	return out
}

// isLegal reports whether action is present in the legal set.
func isLegal(legal map[types.CanonicalAction]types.ActionDescriptor, action types.CanonicalAction) bool {
	_, ok := legal[action]
	return ok
}

// fallbackPriority is the deterministic order consulted when a chosen
// action is illegal and no ATTACK/ENTER_BATTLE_PHASE rewrite applies, and
// by the third-tier fallback selector itself (§4.6.3).
var fallbackPriority = []types.CanonicalAction{
	types.ActionAttack,
	types.ActionEnterBattlePhase,
	types.ActionSummonMonster,
	types.ActionActivateSpell,
	types.ActionSetCard,
	types.ActionChangePosition,
	types.ActionFlipSummon,
	types.ActionEnterMainPhase2,
	types.ActionEndTurn,
}

// ensureLegal enforces §4.6.3's legality pipeline on a chosen decision,
// rewriting or substituting as needed. It always returns a legal action
// when legal contains END_TURN (true for any in-progress turn).
func ensureLegal(d decided, legal map[types.CanonicalAction]types.ActionDescriptor) decided {
	if isLegal(legal, d.Action) {
		return d
	}

	if d.Action == types.ActionAttack && isLegal(legal, types.ActionEnterBattlePhase) {
		return decided{
			Action:     types.ActionEnterBattlePhase,
			Reasoning:  d.Reasoning + " (requested action was illegal: ATTACK not yet available; entering battle phase instead)",
			Parameters: d.Parameters,
			Source:     d.Source,
		}
	}

	for _, candidate := range fallbackPriority {
		if isLegal(legal, candidate) {
			reasoning := d.Reasoning
			if candidate != d.Action {
				reasoning += " (requested action was illegal; substituting " + string(candidate) + ")"
			}
			return decided{Action: candidate, Reasoning: reasoning, Source: d.Source}
		}
	}

	return decided{Action: types.ActionEndTurn, Reasoning: "no legal action available", Source: d.Source}
}
