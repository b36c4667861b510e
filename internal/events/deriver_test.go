package events

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardagent/internal/types"
)

func TestDeriveFirstPollEmitsGameStarted(t *testing.T) {
	curr := types.GameSnapshot{GameID: "g1", Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1", MyPlayerID: "p1", CurrentTurn: "p2"}

	evts := Derive(nil, curr, full)
	require.Len(t, evts, 1)
	assert.Equal(t, types.EventGameStarted, evts[0].Kind)
}

func TestDeriveFirstPollMyTurnAlsoEmitsTurnStarted(t *testing.T) {
	curr := types.GameSnapshot{GameID: "g1", Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1", MyPlayerID: "p1", CurrentTurn: "p1"}

	evts := Derive(nil, curr, full)
	require.Len(t, evts, 2)
	assert.Equal(t, types.EventGameStarted, evts[0].Kind)
	assert.Equal(t, types.EventTurnStarted, evts[1].Kind)
}

func TestDeriveNoChangeEmitsNothing(t *testing.T) {
	snap := types.GameSnapshot{GameID: "g1", TurnNumber: 3, Phase: types.PhaseMain1, Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1"}

	evts := Derive(&snap, snap, full)
	assert.Empty(t, evts)
}

func TestDeriveGameEndedIsExclusive(t *testing.T) {
	prev := types.GameSnapshot{GameID: "g1", TurnNumber: 5, Phase: types.PhaseBattle, Status: types.StatusInProgress}
	curr := types.GameSnapshot{GameID: "g1", TurnNumber: 6, Phase: types.PhaseMain1, Status: types.StatusCompleted}
	full := types.GameStateFull{GameID: "g1", Winner: "agent", EndReason: "opponent_surrendered"}

	evts := Derive(&prev, curr, full)
	require.Len(t, evts, 1)
	assert.Equal(t, types.EventGameEnded, evts[0].Kind)
	assert.Equal(t, "agent", evts[0].Fields["winner"])
}

func TestDeriveTurnChangeToOpponent(t *testing.T) {
	prev := types.GameSnapshot{GameID: "g1", TurnNumber: 3, CurrentTurnActor: "p1", Status: types.StatusInProgress}
	curr := types.GameSnapshot{GameID: "g1", TurnNumber: 4, CurrentTurnActor: "p2", Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1", MyPlayerID: "p1", CurrentTurn: "p2"}

	evts := Derive(&prev, curr, full)
	require.Len(t, evts, 1)
	assert.Equal(t, types.EventOpponentAction, evts[0].Kind)
	assert.Equal(t, "turn_passed", evts[0].Fields["type"])
}

func TestDeriveTurnChangeToMe(t *testing.T) {
	prev := types.GameSnapshot{GameID: "g1", TurnNumber: 3, CurrentTurnActor: "p2", Status: types.StatusInProgress}
	curr := types.GameSnapshot{GameID: "g1", TurnNumber: 4, CurrentTurnActor: "p1", Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1", MyPlayerID: "p1", CurrentTurn: "p1"}

	evts := Derive(&prev, curr, full)
	require.Len(t, evts, 1)
	assert.Equal(t, types.EventTurnStarted, evts[0].Kind)
}

func TestDerivePhaseChangedAndChainWaitingCombine(t *testing.T) {
	prev := types.GameSnapshot{GameID: "g1", TurnNumber: 4, Phase: types.PhaseMain1, Status: types.StatusInProgress}
	curr := types.GameSnapshot{GameID: "g1", TurnNumber: 4, Phase: types.PhaseBattle, IsChainWaiting: true, Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1"}

	evts := Derive(&prev, curr, full)

	want := []types.Event{
		{Kind: types.EventPhaseChanged, GameID: "g1"},
		{Kind: types.EventChainWaiting, GameID: "g1", Fields: map[string]interface{}{"timeout_ms": 30000}},
	}
	if diff := cmp.Diff(want, evts, cmpopts.IgnoreFields(types.Event{}, "Timestamp")); diff != "" {
		t.Fatalf("derived events mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveChainWaitingUsesProvidedTimeout(t *testing.T) {
	prev := types.GameSnapshot{GameID: "g1", Status: types.StatusInProgress}
	curr := types.GameSnapshot{GameID: "g1", IsChainWaiting: true, Status: types.StatusInProgress}
	full := types.GameStateFull{GameID: "g1", ChainState: &types.ChainState{IsWaiting: true, TimeoutMS: 15000}}

	evts := Derive(&prev, curr, full)
	require.Len(t, evts, 1)
	assert.Equal(t, 15000, evts[0].Fields["timeout_ms"])
}
