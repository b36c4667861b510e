package aggregator

import (
	"context"

	"cardagent/internal/config"
	"cardagent/internal/logging"
	"cardagent/internal/polling"
	"cardagent/internal/types"
)

// AgentStatus is the composed view get_agent_status returns (§4.8).
type AgentStatus struct {
	AgentID                   string
	IsPolling                 bool
	CurrentGameID             string
	GamePollMultiplier        float64
	DiscoveryPollMultiplier   float64
	MatchmakingPollMultiplier float64
	Healthy                   bool
}

// Metrics is the composed view get_metrics returns (§4.8).
type Metrics struct {
	AgentID       string
	GamesStarted  int
	LobbiesJoined int
	Source        string // "match_history" or "matchmaking_counters"
}

// Aggregator is a pure reader over the Polling Engine and Turn
// Orchestrator's decision history. Every lookup is lazy and tolerant of
// an absent collaborator.
type Aggregator struct {
	cfg         config.CacheConfig
	engine      PollingEngine
	history     History
	matchSource MatchHistorySource

	gameCache        *gameStateCache
	matchmakingCache *cacheSlot
	metricsCache     *cacheSlot
}

// New creates an Aggregator. engine, history, and matchSource may each be
// nil; every method degrades gracefully when its collaborator is absent.
func New(cfg config.CacheConfig, engine PollingEngine, history History, matchSource MatchHistorySource) *Aggregator {
	return &Aggregator{
		cfg:              cfg,
		engine:           engine,
		history:          history,
		matchSource:      matchSource,
		gameCache:        newGameStateCache(cfg.GameStateTTL()),
		matchmakingCache: newCacheSlot(cfg.MatchmakingTTL()),
		metricsCache:     newCacheSlot(cfg.MetricsTTL()),
	}
}

// GetAgentStatus composes a status view from the polling engine's flags.
func (a *Aggregator) GetAgentStatus(agentID string) (AgentStatus, error) {
	if a.engine == nil {
		return AgentStatus{}, &ServiceUnavailable{Service: "polling_engine"}
	}
	return AgentStatus{
		AgentID:                   agentID,
		IsPolling:                 a.engine.IsPolling(),
		CurrentGameID:             a.engine.CurrentGameID(),
		GamePollMultiplier:        a.engine.GameMultiplier(),
		DiscoveryPollMultiplier:   a.engine.DiscoveryMultiplier(),
		MatchmakingPollMultiplier: a.engine.MatchmakingMultiplier(),
		Healthy:                   a.engine.HealthOK(),
	}, nil
}

// GetMatchmakingStatus returns the matchmaking history/counters, cached
// for CacheTTLMatchmakingMS (§4.8).
func (a *Aggregator) GetMatchmakingStatus(agentID string) (polling.MatchmakingStats, error) {
	if a.engine == nil {
		return polling.MatchmakingStats{}, &ServiceUnavailable{Service: "polling_engine"}
	}
	if v, ok := a.matchmakingCache.get(); ok {
		logging.AggregatorDebug("matchmaking status cache hit for %s", agentID)
		return v.(polling.MatchmakingStats), nil
	}
	logging.AggregatorDebug("matchmaking status cache miss for %s", agentID)
	stats := a.engine.MatchmakingSnapshot()
	a.matchmakingCache.set(stats)
	return stats, nil
}

// GetGameState returns the authoritative state for gameID, cached for
// CacheTTLGameStateMS. On a cache miss it fetches directly through the API
// client obtained from the polling engine, not through the hot poll loop's
// own state (§4.8).
func (a *Aggregator) GetGameState(ctx context.Context, agentID, gameID string) (*types.GameStateFull, error) {
	if a.engine == nil {
		return nil, &ServiceUnavailable{Service: "polling_engine"}
	}

	slot := a.gameCache.slot(gameID)
	if v, ok := slot.get(); ok {
		logging.AggregatorDebug("game state cache hit for %s/%s", agentID, gameID)
		return v.(*types.GameStateFull), nil
	}
	logging.AggregatorDebug("game state cache miss for %s/%s", agentID, gameID)

	api := a.engine.APIClient()
	if api == nil {
		return nil, &ServiceUnavailable{Service: "api_client"}
	}
	state, err := api.GetGameState(ctx, gameID)
	if err != nil {
		return nil, err
	}
	slot.set(state)
	return state, nil
}

// GetDecisionHistory is a straight pass-through to the Decision History
// component; an absent orchestrator/history yields an empty list rather
// than an error (§4.8).
func (a *Aggregator) GetDecisionHistory(agentID, gameID string, limit int) []types.Decision {
	if a.history == nil {
		return nil
	}
	return a.history.Get(gameID, limit)
}

// GetMetrics returns aggregate agent metrics, cached for
// CacheTTLMetricsMS. It tries an external match-history source first and
// falls back to the polling engine's matchmaking counters (§4.8).
func (a *Aggregator) GetMetrics(ctx context.Context, agentID string) (Metrics, error) {
	if v, ok := a.metricsCache.get(); ok {
		logging.AggregatorDebug("metrics cache hit for %s", agentID)
		return v.(Metrics), nil
	}
	logging.AggregatorDebug("metrics cache miss for %s", agentID)

	if a.matchSource != nil {
		if stats, err := a.matchSource.GetMatchHistory(ctx, agentID); err == nil {
			m := Metrics{
				AgentID:       agentID,
				GamesStarted:  stats.GamesPlayed,
				LobbiesJoined: stats.LobbiesJoined,
				Source:        "match_history",
			}
			a.metricsCache.set(m)
			return m, nil
		}
		logging.AggregatorDebug("match history source unavailable for %s, falling back", agentID)
	}

	if a.engine == nil {
		return Metrics{}, &ServiceUnavailable{Service: "polling_engine"}
	}
	mm := a.engine.MatchmakingSnapshot()
	m := Metrics{
		AgentID:       agentID,
		GamesStarted:  mm.GamesStarted,
		LobbiesJoined: mm.LobbiesJoined,
		Source:        "matchmaking_counters",
	}
	a.metricsCache.set(m)
	return m, nil
}

// CacheStats reports hit/miss counters across all three caches, primarily
// for operator-facing diagnostics.
type CacheStats struct {
	GameStateHits, GameStateMisses         int64
	MatchmakingHits, MatchmakingMisses     int64
	MetricsHits, MetricsMisses             int64
}

// Stats returns the current cache hit/miss counters.
func (a *Aggregator) Stats() CacheStats {
	gh, gm := a.gameCache.totalStats()
	mh, mm := a.matchmakingCache.stats()
	eh, em := a.metricsCache.stats()
	return CacheStats{
		GameStateHits: gh, GameStateMisses: gm,
		MatchmakingHits: mh, MatchmakingMisses: mm,
		MetricsHits: eh, MetricsMisses: em,
	}
}
