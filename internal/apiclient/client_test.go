package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardagent/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "test-key", AgentID: "agent-1"}), srv
}

func TestGetGameState(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games/g1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "agent-1", r.Header.Get("X-Agent-Id"))
		_ = json.NewEncoder(w).Encode(GameStateResponse{
			GameStateFull: types.GameStateFull{
				GameID:      "g1",
				Phase:       types.PhaseMain1,
				MyPlayerID:  "p1",
				CurrentTurn: "p1",
			},
		})
	})

	state, err := c.GetGameState(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", state.GameID)
	assert.True(t, state.IsAgentTurn())
}

func TestGetGameStateNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiError{Message: "game_not_found: g1"})
	})

	_, err := c.GetGameState(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestGetGameStateAuthError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apiError{Error: "invalid token"})
	})

	_, err := c.GetGameState(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, types.IsAuthError(err))
}

func TestSummonPostsTributeIDs(t *testing.T) {
	var captured actionRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/games/g1/summon", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	})

	err := c.Summon(context.Background(), "g1", "card-42", []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, "card-42", captured.CardID)
	assert.Equal(t, []string{"c1", "c2"}, captured.TributeIDs)
}

func TestEndTurn(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/games/g1/end-turn", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.EndTurn(context.Background(), "g1"))
	assert.True(t, called)
}

func TestGetAvailableActions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AvailableActionsResponse{
			Actions: []types.ActionDescriptor{
				{ActionName: "SUMMON_MONSTER", EligibleCardIDs: []string{"c1"}},
			},
		})
	})
	actions, err := c.GetAvailableActions(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, actions.Actions, 1)
	assert.Equal(t, "SUMMON_MONSTER", actions.Actions[0].ActionName)
}

func TestTransportErrorOnServerFault(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	_, err := c.GetGameState(context.Background(), "g1")
	require.Error(t, err)
	var te *types.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestGenerateRequestIDUnique(t *testing.T) {
	a := generateRequestID()
	b := generateRequestID()
	assert.NotEqual(t, a, b)
}
