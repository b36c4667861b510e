package orchestrator

import (
	"cardagent/internal/types"
)

// isCreature reports whether a hand card represents a monster rather than
// a spell/trap. The data model (§3) carries no explicit card-type field;
// monsters are the only cards with a nonzero level, attack, or defense, so
// zero across all three identifies a spell/trap.
func isCreature(c types.CardInHand) bool {
	return c.Level > 0 || c.Attack > 0 || c.Defense > 0
}

// tributesRequired implements §4.6.4's cost/level inference: >=7 needs 2
// tributes, >=5 needs 1, else 0.
func tributesRequired(costOrLevel int) int {
	switch {
	case costOrLevel >= 7:
		return 2
	case costOrLevel >= 5:
		return 1
	default:
		return 0
	}
}

// chainableCards enumerates chain-eligible hand spells and own-backrow set
// traps from state (§4.6.5). The hand's non-creature cards (per isCreature's
// no-type-field inference) are chainable spells; a face-down card in the
// host player's spell/trap zone is a set trap.
func chainableCards(state *types.GameStateFull) []string {
	var ids []string
	for _, c := range state.Hand {
		if !isCreature(c) {
			ids = append(ids, c.CardID)
		}
	}
	for _, c := range state.HostPlayer.SpellTrapZone {
		if c.FaceDown {
			ids = append(ids, c.CardID)
		}
	}
	return ids
}

// containsID reports whether id appears in ids.
func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func handCard(state *types.GameStateFull, cardID string) (types.CardInHand, bool) {
	for _, c := range state.Hand {
		if c.CardID == cardID {
			return c, true
		}
	}
	return types.CardInHand{}, false
}

// boardCard looks up cardID among board.
func boardCard(board []types.BoardCard, cardID string) (types.BoardCard, bool) {
	for _, c := range board {
		if c.CardID == cardID {
			return c, true
		}
	}
	return types.BoardCard{}, false
}

// boardHas reports whether cardID refers to an existing board entry.
func boardHas(board []types.BoardCard, cardID string) bool {
	if cardID == "" {
		return false
	}
	_, ok := boardCard(board, cardID)
	return ok
}

// decideHeuristic applies §4.6.3(a)'s deterministic rules. It returns
// ok=false when no rule fires, signaling the caller to fall through to the
// probabilistic tier.
func decideHeuristic(tc *TurnContext, legal map[types.CanonicalAction]types.ActionDescriptor) (decided, bool) {
	if len(legal) == 1 {
		if _, onlyEndTurn := legal[types.ActionEndTurn]; onlyEndTurn {
			return decided{Action: types.ActionEndTurn, Reasoning: "only END_TURN is legal", Source: types.SourceHeuristic}, true
		}
	}

	switch tc.State.Phase {
	case types.PhaseMain1:
		return decideMain(tc, legal, true)
	case types.PhaseBattle:
		return decideBattle(tc, legal)
	case types.PhaseMain2:
		return decideMain(tc, legal, false)
	default:
		return decided{}, false
	}
}

func decideMain(tc *TurnContext, legal map[types.CanonicalAction]types.ActionDescriptor, allowBattle bool) (decided, bool) {
	state := tc.State

	if desc, ok := legal[types.ActionActivateSpell]; ok && len(desc.EligibleCardIDs) > 0 {
		return decided{
			Action:     types.ActionActivateSpell,
			Reasoning:  "activating available spell in main phase",
			Parameters: map[string]interface{}{"card_id": desc.EligibleCardIDs[0]},
			Source:     types.SourceHeuristic,
		}, true
	}

	if allowBattle {
		if _, ok := legal[types.ActionEnterBattlePhase]; ok && anyMonsterCanAttack(state.MyBoard) {
			return decided{
				Action:    types.ActionEnterBattlePhase,
				Reasoning: "an own monster can still attack; entering battle phase",
				Source:    types.SourceHeuristic,
			}, true
		}
	}

	if desc, ok := legal[types.ActionSummonMonster]; ok && len(desc.EligibleCardIDs) > 0 {
		cardID, ok := pickSummonCandidate(state, desc.EligibleCardIDs)
		if ok {
			return decided{
				Action:     types.ActionSummonMonster,
				Reasoning:  "summoning lowest-tribute, highest-attack eligible monster",
				Parameters: map[string]interface{}{"card_id": cardID},
				Source:     types.SourceHeuristic,
			}, true
		}
	}

	if desc, ok := legal[types.ActionSetCard]; ok && len(desc.EligibleCardIDs) > 0 {
		if d, ok := pickSetCandidate(state, desc.EligibleCardIDs); ok {
			return d, true
		}
	}

	if !allowBattle {
		return decided{Action: types.ActionEndTurn, Reasoning: "no main-phase-2 rule fired", Source: types.SourceHeuristic}, true
	}

	return decided{}, false
}

// anyMonsterCanAttack reports whether at least one own board monster is
// still able to attack this turn (not face-down, hasn't already attacked).
func anyMonsterCanAttack(board []types.BoardCard) bool {
	for _, m := range board {
		if !m.FaceDown && !m.HasAttacked {
			return true
		}
	}
	return false
}

// pickSummonCandidate selects the lowest-tribute, then highest-ATK
// eligible monster from hand (§4.6.3 main1/main2 summon rule).
func pickSummonCandidate(state *types.GameStateFull, eligibleIDs []string) (string, bool) {
	var best types.CardInHand
	var bestID string
	found := false

	for _, id := range eligibleIDs {
		card, ok := handCard(state, id)
		if !ok {
			continue
		}
		tributes := tributesRequired(maxInt(card.Cost, card.Level))
		bestTributes := tributesRequired(maxInt(best.Cost, best.Level))
		if !found || tributes < bestTributes || (tributes == bestTributes && card.Attack > best.Attack) {
			best = card
			bestID = id
			found = true
		}
	}
	return bestID, found
}

// pickSetCandidate implements §4.6.3's SET_CARD main-phase rule: prefer a
// non-creature; if only creatures are eligible, pick the lowest-tribute
// one; otherwise (no eligible ids at all, already checked by the caller)
// decline rather than blind-set a monster.
func pickSetCandidate(state *types.GameStateFull, eligibleIDs []string) (decided, bool) {
	for _, id := range eligibleIDs {
		card, ok := handCard(state, id)
		if ok && !isCreature(card) {
			return decided{
				Action:     types.ActionSetCard,
				Reasoning:  "setting a non-creature card",
				Parameters: map[string]interface{}{"card_id": id, "kind": "spell_trap"},
				Source:     types.SourceHeuristic,
			}, true
		}
	}

	var best types.CardInHand
	var bestID string
	found := false
	for _, id := range eligibleIDs {
		card, ok := handCard(state, id)
		if !ok || !isCreature(card) {
			continue
		}
		tributes := tributesRequired(maxInt(card.Cost, card.Level))
		bestTributes := tributesRequired(maxInt(best.Cost, best.Level))
		if !found || tributes < bestTributes {
			best = card
			bestID = id
			found = true
		}
	}
	if !found {
		return decided{}, false
	}
	return decided{
		Action:     types.ActionSetCard,
		Reasoning:  "setting lowest-tribute monster face-down",
		Parameters: map[string]interface{}{"card_id": bestID, "kind": "monster"},
		Source:     types.SourceHeuristic,
	}, true
}

func decideBattle(tc *TurnContext, legal map[types.CanonicalAction]types.ActionDescriptor) (decided, bool) {
	state := tc.State

	if _, ok := legal[types.ActionAttack]; ok {
		attackerID, ok := strongestReadyAttacker(state.MyBoard)
		if ok {
			targetID := selectAttackTarget(state.OpponentBoard)
			return decided{
				Action:    types.ActionAttack,
				Reasoning: "attacking with strongest ready attacker",
				Parameters: map[string]interface{}{
					"attacker_id": attackerID,
					"target_id":   targetID,
				},
				Source: types.SourceHeuristic,
			}, true
		}
	}

	if _, ok := legal[types.ActionEnterMainPhase2]; ok {
		return decided{Action: types.ActionEnterMainPhase2, Reasoning: "no further attacks available; advancing to main phase 2", Source: types.SourceHeuristic}, true
	}

	return decided{Action: types.ActionEndTurn, Reasoning: "nothing left to do in battle phase", Source: types.SourceHeuristic}, true
}

// strongestReadyAttacker returns the highest-attack, not-face-down,
// not-already-attacked own board monster.
func strongestReadyAttacker(board []types.BoardCard) (string, bool) {
	var best types.BoardCard
	found := false
	for _, m := range board {
		if m.FaceDown || m.HasAttacked {
			continue
		}
		if !found || m.Attack > best.Attack {
			best = m
			found = true
		}
	}
	return best.CardID, found
}

// selectAttackTarget picks the weakest face-up opponent monster by
// effective value (ATK in attack position, DEF in defense position); if
// the opponent board is entirely face-down, targets the first entry; if
// the opponent board is empty, returns "" for a direct attack.
func selectAttackTarget(board []types.BoardCard) string {
	if len(board) == 0 {
		return ""
	}

	allFaceDown := true
	for _, m := range board {
		if !m.FaceDown {
			allFaceDown = false
			break
		}
	}
	if allFaceDown {
		return board[0].CardID
	}

	var weakest types.BoardCard
	found := false
	for _, m := range board {
		if m.FaceDown {
			continue
		}
		value := m.Attack
		if m.Position == types.PositionDefense {
			value = m.Defense
		}
		weakestValue := weakest.Attack
		if weakest.Position == types.PositionDefense {
			weakestValue = weakest.Defense
		}
		if !found || value < weakestValue {
			weakest = m
			found = true
		}
	}
	if !found {
		return board[0].CardID
	}
	return weakest.CardID
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
