package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cardagent/internal/decision"
	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// decide implements the two/three-tier policy of §4.6.3: a deterministic
// heuristic runs first; if none fires and a model Source is configured and
// the per-turn model budget isn't exhausted, a rate-limited probabilistic
// call runs. A model reply that does not parse, or names no known action,
// degrades to END_TURN. A failed model call, an absent model or a spent
// budget falls to the deterministic fallback selector, which always
// produces a legal-or-END_TURN action. The bool reports whether the model
// was called, so every call counts against the per-turn budget.
func (o *Orchestrator) decide(ctx context.Context, tc *TurnContext, legal map[types.CanonicalAction]types.ActionDescriptor, modelCallsUsed int) (decided, bool) {
	if d, ok := decideHeuristic(tc, legal); ok {
		return ensureLegal(d, legal), false
	}

	if o.model != nil && modelCallsUsed < o.cfg.MaxModelDecisionsPerTurn {
		prompt := buildPrompt(tc, legal)
		resp, err := o.model.Decide(ctx, prompt)
		if err == nil && resp.Action != "" {
			d := decided{
				Action:     types.CanonicalAction(resp.Action),
				Reasoning:  resp.Reasoning,
				Parameters: resp.Parameters,
				Source:     types.SourceModel,
			}
			return ensureLegal(d, legal), true
		}
		var parseErr *types.ParseError
		if err == nil || errors.As(err, &parseErr) {
			logging.OrchestratorDebug("model reply for %s unusable, ending turn", tc.GameID)
			d := decided{Action: types.ActionEndTurn, Reasoning: "model reply unparseable or unknown action: ending turn", Source: types.SourceModel}
			return ensureLegal(d, legal), true
		}
		logging.OrchestratorDebug("model decision failed for %s, falling back: %v", tc.GameID, err)
		logging.Audit().DecisionFallback(tc.GameID, err.Error())
		return ensureLegal(fallbackSelect(legal), legal), true
	}

	return ensureLegal(fallbackSelect(legal), legal), false
}

// fallbackSelect is the deterministic third-tier selector: the first legal
// action in fallbackPriority, or END_TURN.
func fallbackSelect(legal map[types.CanonicalAction]types.ActionDescriptor) decided {
	for _, candidate := range fallbackPriority {
		if isLegal(legal, candidate) {
			return decided{Action: candidate, Reasoning: "fallback selector", Source: types.SourceFallback}
		}
	}
	return decided{Action: types.ActionEndTurn, Reasoning: "fallback selector: no legal action, ending turn", Source: types.SourceFallback}
}

// buildPrompt renders a compact textual description of the turn context
// for the model tier: phase, legal actions, hand, boards, and any actions
// already attempted and rejected this turn.
func buildPrompt(tc *TurnContext, legal map[types.CanonicalAction]types.ActionDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game %s, turn %d, phase %s.\n", tc.GameID, tc.State.TurnNumber, tc.State.Phase)
	fmt.Fprintf(&b, "My life: %d. Opponent life: %d.\n", tc.State.MyLifePoints, tc.State.OpponentLifePoints)

	b.WriteString("Legal actions: ")
	first := true
	for action := range legal {
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(string(action))
		first = false
	}
	b.WriteString(".\n")

	fmt.Fprintf(&b, "Hand: %d cards. My board: %d cards. Opponent board: %d cards.\n",
		len(tc.State.Hand), len(tc.State.MyBoard), len(tc.State.OpponentBoard))

	if len(tc.FailedActions) > 0 {
		b.WriteString("Already attempted and rejected this turn: ")
		for i, f := range tc.FailedActions {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%s)", f.Action, f.Reason)
		}
		b.WriteString(".\n")
	}

	b.WriteString(`Respond with a single JSON object: {"action": "<ACTION>", "reasoning": "<why>", "parameters": {...}}`)
	return b.String()
}
