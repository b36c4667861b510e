package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAgentTurn(t *testing.T) {
	s := GameStateFull{MyPlayerID: "p1", CurrentTurn: "p1"}
	assert.True(t, s.IsAgentTurn())

	s.CurrentTurn = "p2"
	assert.False(t, s.IsAgentTurn())

	s.MyPlayerID = ""
	assert.False(t, s.IsAgentTurn())
}

func TestSnapshot(t *testing.T) {
	s := GameStateFull{
		GameID:      "g1",
		TurnNumber:  3,
		Phase:       PhaseBattle,
		CurrentTurn: "p1",
		Status:      StatusInProgress,
		ChainState:  &ChainState{IsWaiting: true, TimeoutMS: 30000},
	}
	snap := s.Snapshot()
	assert.Equal(t, "g1", snap.GameID)
	assert.Equal(t, 3, snap.TurnNumber)
	assert.Equal(t, PhaseBattle, snap.Phase)
	assert.True(t, snap.IsChainWaiting)
}

func TestClassifyAPIError(t *testing.T) {
	assert.True(t, IsAuthError(ClassifyAPIError(401, "bad credentials")))
	assert.True(t, IsNotFound(ClassifyAPIError(404, "Game Not Found")))
	assert.True(t, IsNotFound(ClassifyAPIError(400, "game-not-found: G1")))
	err := ClassifyAPIError(500, "internal server error")
	assert.False(t, IsNotFound(err))
	assert.False(t, IsAuthError(err))
}
