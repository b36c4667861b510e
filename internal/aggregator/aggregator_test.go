package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardagent/internal/apiclient"
	"cardagent/internal/config"
	"cardagent/internal/polling"
	"cardagent/internal/types"
)

type fakeEngine struct {
	isPolling     bool
	currentGameID string
	gameMult      float64
	discMult      float64
	mmMult        float64
	healthy       bool
	mmStats       polling.MatchmakingStats
	api           polling.APIClient
}

func (f *fakeEngine) IsPolling() bool                                 { return f.isPolling }
func (f *fakeEngine) CurrentGameID() string                           { return f.currentGameID }
func (f *fakeEngine) GameMultiplier() float64                         { return f.gameMult }
func (f *fakeEngine) DiscoveryMultiplier() float64                    { return f.discMult }
func (f *fakeEngine) MatchmakingMultiplier() float64                  { return f.mmMult }
func (f *fakeEngine) HealthOK() bool                                  { return f.healthy }
func (f *fakeEngine) MatchmakingSnapshot() polling.MatchmakingStats   { return f.mmStats }
func (f *fakeEngine) APIClient() polling.APIClient                    { return f.api }

type fakeAPI struct {
	calls int
	state *types.GameStateFull
}

func (f *fakeAPI) GetGameState(ctx context.Context, gameID string) (*types.GameStateFull, error) {
	f.calls++
	return f.state, nil
}
func (f *fakeAPI) GetPendingTurns(ctx context.Context) ([]apiclient.PendingTurn, error) {
	return nil, nil
}

func (f *fakeAPI) GetLobbies(ctx context.Context, scope string) ([]apiclient.LobbySummary, error) {
	return nil, nil
}

func (f *fakeAPI) JoinLobby(ctx context.Context, lobbyID, deckID string) (string, error) {
	return "", nil
}
func (f *fakeAPI) GetDecks(ctx context.Context) ([]apiclient.Deck, error) { return nil, nil }

func (f *fakeAPI) EmitAgentEvent(ctx context.Context, gameID, eventType string, fields map[string]interface{}) error {
	return nil
}
func (f *fakeAPI) CompleteStoryStage(ctx context.Context, stageID string, success bool) error {
	return nil
}
func (f *fakeAPI) Surrender(ctx context.Context, gameID string) error { return nil }

func (f *fakeAPI) QuickPlayStory(ctx context.Context, difficulty string) (apiclient.QuickPlayResult, error) {
	return apiclient.QuickPlayResult{}, nil
}

type fakeHistory struct {
	decisions []types.Decision
}

func (h *fakeHistory) Get(gameID string, limit int) []types.Decision {
	if limit <= 0 || limit > len(h.decisions) {
		limit = len(h.decisions)
	}
	return h.decisions[:limit]
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{GameStateTTLMS: 50, MatchmakingTTLMS: 50, MetricsTTLMS: 50}
}

func TestGetAgentStatusReturnsServiceUnavailableWithoutEngine(t *testing.T) {
	a := New(testCacheConfig(), nil, nil, nil)
	_, err := a.GetAgentStatus("agent1")
	assert.ErrorAs(t, err, new(*ServiceUnavailable))
}

func TestGetAgentStatusComposesFromEngine(t *testing.T) {
	engine := &fakeEngine{isPolling: true, currentGameID: "g1", healthy: true, gameMult: 1.5}
	a := New(testCacheConfig(), engine, nil, nil)

	status, err := a.GetAgentStatus("agent1")
	require.NoError(t, err)
	assert.True(t, status.IsPolling)
	assert.Equal(t, "g1", status.CurrentGameID)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1.5, status.GamePollMultiplier)
}

func TestGetDecisionHistoryReturnsEmptyWithoutHistory(t *testing.T) {
	a := New(testCacheConfig(), nil, nil, nil)
	out := a.GetDecisionHistory("agent1", "g1", 5)
	assert.Empty(t, out)
}

func TestGetDecisionHistoryPassesThrough(t *testing.T) {
	hist := &fakeHistory{decisions: []types.Decision{{Action: types.ActionEndTurn}}}
	a := New(testCacheConfig(), nil, hist, nil)
	out := a.GetDecisionHistory("agent1", "g1", 5)
	require.Len(t, out, 1)
	assert.Equal(t, types.ActionEndTurn, out[0].Action)
}

func TestGetMetricsFallsBackToMatchmakingCounters(t *testing.T) {
	engine := &fakeEngine{mmStats: polling.MatchmakingStats{GamesStarted: 3, LobbiesJoined: 4}}
	a := New(testCacheConfig(), engine, nil, nil)

	m, err := a.GetMetrics(context.Background(), "agent1")
	require.NoError(t, err)
	assert.Equal(t, "matchmaking_counters", m.Source)
	assert.Equal(t, 3, m.GamesStarted)
	assert.Equal(t, 4, m.LobbiesJoined)
}

type fakeMatchSource struct {
	stats MatchHistoryStats
	err   error
}

func (f *fakeMatchSource) GetMatchHistory(ctx context.Context, agentID string) (MatchHistoryStats, error) {
	return f.stats, f.err
}

func TestGetMetricsPrefersMatchHistorySource(t *testing.T) {
	engine := &fakeEngine{mmStats: polling.MatchmakingStats{GamesStarted: 3, LobbiesJoined: 4}}
	src := &fakeMatchSource{stats: MatchHistoryStats{GamesPlayed: 10, LobbiesJoined: 12}}
	a := New(testCacheConfig(), engine, nil, src)

	m, err := a.GetMetrics(context.Background(), "agent1")
	require.NoError(t, err)
	assert.Equal(t, "match_history", m.Source)
	assert.Equal(t, 10, m.GamesStarted)
}

func TestGetGameStateCachesUntilTTLExpires(t *testing.T) {
	api := &fakeAPI{state: &types.GameStateFull{GameID: "g1"}}
	engine := &fakeEngine{api: api}
	cfg := config.CacheConfig{GameStateTTLMS: 20}
	a := New(cfg, engine, nil, nil)

	_, err := a.GetGameState(context.Background(), "agent1", "g1")
	require.NoError(t, err)
	_, err = a.GetGameState(context.Background(), "agent1", "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls, "second call within TTL should be served from cache")

	time.Sleep(30 * time.Millisecond)
	_, err = a.GetGameState(context.Background(), "agent1", "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls, "call after TTL expiry should miss cache")
}
