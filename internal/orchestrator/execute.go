package orchestrator

import (
	"context"
	"fmt"

	"cardagent/internal/types"
)

func paramString(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	v, _ := params[key].(string)
	return v
}

func paramStringSlice(params map[string]interface{}, key string) []string {
	if params == nil {
		return nil
	}
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// inferTributes implements §4.6.4: when the chosen monster's cost/level
// requires tributes that the decision didn't supply, auto-select face-up
// own board monsters to tribute. Execution fails rather than guessing if
// the board doesn't hold enough candidates.
func inferTributes(state *types.GameStateFull, cardID string, supplied []string) ([]string, error) {
	card, ok := handCard(state, cardID)
	if !ok {
		return supplied, nil
	}
	required := tributesRequired(maxInt(card.Cost, card.Level))
	if required == 0 || len(supplied) >= required {
		return supplied, nil
	}

	need := required - len(supplied)
	taken := make(map[string]bool, len(supplied))
	for _, id := range supplied {
		taken[id] = true
	}

	out := append([]string{}, supplied...)
	for _, m := range state.MyBoard {
		if need == 0 {
			break
		}
		if m.FaceDown || taken[m.CardID] {
			continue
		}
		out = append(out, m.CardID)
		taken[m.CardID] = true
		need--
	}
	if need > 0 {
		return nil, fmt.Errorf("not enough tribute candidates on board: need %d more for card %s", need, cardID)
	}
	return out, nil
}

// execute dispatches a legal decided action to the API client, wrapped in
// the circuit breaker under a per-operation, per-game name.
func (o *Orchestrator) execute(ctx context.Context, gameID string, state *types.GameStateFull, d decided) error {
	op := func(name string, fn func(c context.Context) error) error {
		return o.breaker.Execute(ctx, o.opName(name, gameID), fn)
	}

	switch d.Action {
	case types.ActionSummonMonster:
		cardID := paramString(d.Parameters, "card_id")
		tributes, err := inferTributes(state, cardID, paramStringSlice(d.Parameters, "tribute_ids"))
		if err != nil {
			return err
		}
		return op("summon", func(c context.Context) error { return o.api.Summon(c, gameID, cardID, tributes) })

	case types.ActionSetCard:
		cardID := paramString(d.Parameters, "card_id")
		if paramString(d.Parameters, "kind") == "monster" {
			tributes, err := inferTributes(state, cardID, paramStringSlice(d.Parameters, "tribute_ids"))
			if err != nil {
				return err
			}
			return op("set_monster", func(c context.Context) error { return o.api.SetMonster(c, gameID, cardID, tributes) })
		}
		return op("set_spell_trap", func(c context.Context) error { return o.api.SetSpellTrap(c, gameID, cardID) })

	case types.ActionActivateSpell, types.ActionActivateTrap:
		cardID := paramString(d.Parameters, "card_id")
		return op("activate_spell", func(c context.Context) error { return o.api.ActivateSpell(c, gameID, cardID) })

	case types.ActionAttack:
		attackerID := paramString(d.Parameters, "attacker_id")
		if !boardHas(state.MyBoard, attackerID) {
			if id, ok := strongestReadyAttacker(state.MyBoard); ok {
				attackerID = id
			}
		}
		targetID := paramString(d.Parameters, "target_id")
		if targetID != "" && !boardHas(state.OpponentBoard, targetID) {
			targetID = ""
		}
		if targetID == "" {
			targetID = selectAttackTarget(state.OpponentBoard)
		}
		return op("attack", func(c context.Context) error { return o.api.Attack(c, gameID, attackerID, targetID) })

	case types.ActionChangePosition:
		cardID := paramString(d.Parameters, "card_id")
		card, ok := boardCard(state.MyBoard, cardID)
		if !ok {
			return fmt.Errorf("orchestrator: change_position card %s not on board", cardID)
		}
		if card.HasChangedPosition || card.HasAttacked {
			return fmt.Errorf("orchestrator: card %s has already changed position or attacked this turn", cardID)
		}
		return op("change_position", func(c context.Context) error { return o.api.ChangePosition(c, gameID, cardID) })

	case types.ActionFlipSummon:
		cardID := paramString(d.Parameters, "card_id")
		card, ok := boardCard(state.MyBoard, cardID)
		if !ok {
			return fmt.Errorf("orchestrator: flip_summon card %s not on board", cardID)
		}
		if !card.FaceDown || card.HasAttacked {
			return fmt.Errorf("orchestrator: card %s is not face-down or has already acted this turn", cardID)
		}
		return op("flip_summon", func(c context.Context) error { return o.api.FlipSummon(c, gameID, cardID) })

	case types.ActionEnterBattlePhase:
		return op("enter_battle_phase", func(c context.Context) error { return o.api.EnterBattlePhase(c, gameID) })

	case types.ActionEnterMainPhase2:
		return op("enter_main_phase_2", func(c context.Context) error { return o.api.EnterMainPhase2(c, gameID) })

	case types.ActionEndTurn:
		return op("end_turn", func(c context.Context) error { return o.api.EndTurn(c, gameID) })

	default:
		return fmt.Errorf("orchestrator: no execution mapping for action %s", d.Action)
	}
}
