package polling

import (
	"context"
	"sync"
	"time"

	"cardagent/internal/config"
	"cardagent/internal/logging"
	"cardagent/internal/scheduler"
	"cardagent/internal/types"
)

// Engine owns the three adaptive scheduling loops described in §4.4: the
// hot game-state poll (started and stopped per game), and the always-on
// discovery and matchmaking loops. All three share one Breaker instance;
// distinct operation-name prefixes keep them from colliding (§5).
type Engine struct {
	cfg  config.Config
	api  APIClient
	br   Breaker
	orch Orchestrator

	gameSched       *scheduler.Scheduler
	discoverySched  *scheduler.Scheduler
	matchmakingSched *scheduler.Scheduler

	mu                 sync.Mutex
	gamePolling        bool
	currentGameID      string
	stageID            string
	streamingSessionID string
	lastSnapshot       *types.GameSnapshot
	lastState          *types.GameStateFull
	cachedDeckID       string

	mm *matchmakingHistory
}

// New wires an Engine. The game-state scheduler is created but not started
// until StartPollingGame is first called; the discovery and matchmaking
// schedulers start with the engine via Start.
func New(cfg config.Config, api APIClient, br Breaker, orch Orchestrator) *Engine {
	e := &Engine{cfg: cfg, api: api, br: br, orch: orch, mm: newMatchmakingHistory()}

	e.gameSched = scheduler.New(scheduler.Config{
		Name:           "game",
		BaseInterval:   cfg.PollInterval(),
		IdleTimeout:    cfg.IdleTimeout(),
		IdleMultiplier: cfg.Polling.IdleMultiplier,
		MaxMultiplier:  cfg.Polling.MaxIntervalMultiplier,
		Adaptive:       cfg.Polling.AdaptivePolling,
	}, e.tickGame)

	e.discoverySched = scheduler.New(scheduler.Config{
		Name:           "discovery",
		BaseInterval:   cfg.DiscoveryInterval(),
		IdleTimeout:    cfg.IdleTimeout(),
		IdleMultiplier: cfg.Polling.IdleMultiplier,
		MaxMultiplier:  cfg.Polling.MaxIntervalMultiplier,
		Adaptive:       cfg.Polling.AdaptivePolling,
	}, e.tickDiscovery)

	e.matchmakingSched = scheduler.New(scheduler.Config{
		Name:           "matchmaking",
		BaseInterval:   cfg.MatchmakingInterval(),
		IdleTimeout:    cfg.IdleTimeout(),
		IdleMultiplier: cfg.Polling.IdleMultiplier,
		MaxMultiplier:  cfg.Polling.MaxIntervalMultiplier,
		Adaptive:       cfg.Polling.AdaptivePolling,
	}, e.tickMatchmaking)

	return e
}

// Start begins the discovery loop, and the matchmaking loop if enabled.
// The game loop starts only via StartPollingGame.
func (e *Engine) Start() {
	e.discoverySched.Start()
	if e.cfg.Polling.AutoMatchmaking {
		e.matchmakingSched.Start()
	}
	logging.Polling("engine started (auto_matchmaking=%v)", e.cfg.Polling.AutoMatchmaking)
}

// Stop halts all three loops. It is the Shutdown/Lifecycle component's
// responsibility to call this after surrendering any active game.
func (e *Engine) Stop() {
	e.StopPolling()
	e.discoverySched.Stop()
	e.matchmakingSched.Stop()
	logging.Polling("engine stopped")
}

// IsPolling reports whether the game-state loop is currently active.
func (e *Engine) IsPolling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gamePolling
}

// CurrentGameID returns the game id currently being polled, or "".
func (e *Engine) CurrentGameID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentGameID
}

// StreamingSessionID returns the streaming session linked to the current
// game, if any, for the Shutdown/Lifecycle component's notify step.
func (e *Engine) StreamingSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamingSessionID
}

// APIClient exposes the shared API client for the State Aggregator's
// on-miss fetch path (§4.8).
func (e *Engine) APIClient() APIClient { return e.api }

// GameMultiplier, DiscoveryMultiplier, and MatchmakingMultiplier report
// each loop's current adaptive interval multiplier, for the aggregator's
// diagnostic status projection.
func (e *Engine) GameMultiplier() float64        { return e.gameSched.Multiplier() }
func (e *Engine) DiscoveryMultiplier() float64   { return e.discoverySched.Multiplier() }
func (e *Engine) MatchmakingMultiplier() float64 { return e.matchmakingSched.Multiplier() }

// HealthOK reports true when no circuit breaker is currently open (§7
// get_health_status).
func (e *Engine) HealthOK() bool {
	if anyOpen, ok := e.br.(interface{ AnyOpen() bool }); ok {
		return !anyOpen.AnyOpen()
	}
	return true
}

// MatchmakingSnapshot returns the current matchmaking history and counters.
func (e *Engine) MatchmakingSnapshot() MatchmakingStats {
	return e.mm.snapshot()
}

func (e *Engine) gameOpName(gameID string) string {
	return "poll_game_" + gameID
}

// StartPollingGame begins polling gameID. Calling it again for the game
// already being polled is a no-op (§4.4 idempotency). Calling it for a
// different game first stops the current loop and clears its per-game
// state: last snapshot, circuit breaker, and retry delay.
func (e *Engine) StartPollingGame(gameID string, opts StartOptions) {
	e.mu.Lock()
	if e.gamePolling && e.currentGameID == gameID {
		e.mu.Unlock()
		logging.PollingDebug("start_polling_game(%s): already polling, no-op", gameID)
		return
	}
	wasPolling := e.gamePolling
	prevGameID := e.currentGameID
	e.mu.Unlock()

	if wasPolling {
		e.gameSched.Stop()
		e.br.Reset(e.gameOpName(prevGameID))
	}

	e.mu.Lock()
	e.currentGameID = gameID
	e.stageID = opts.StageID
	e.streamingSessionID = opts.StreamingSessionID
	e.lastSnapshot = nil
	e.lastState = nil
	e.gamePolling = true
	e.mu.Unlock()

	e.br.Reset(e.gameOpName(gameID))
	logging.Audit().GameStart(gameID)
	logging.Polling("start_polling_game: %s", gameID)
	e.gameSched.Start()
}

// StopPolling clears the game loop's timer and all of its per-game state.
// A second call after the first is a no-op (§4.4, §8 idempotence law).
func (e *Engine) StopPolling() {
	e.mu.Lock()
	if !e.gamePolling {
		e.mu.Unlock()
		return
	}
	gameID := e.currentGameID
	e.gamePolling = false
	e.currentGameID = ""
	e.stageID = ""
	e.streamingSessionID = ""
	e.lastSnapshot = nil
	e.lastState = nil
	e.mu.Unlock()

	e.gameSched.Stop()
	if gameID != "" {
		e.br.Reset(e.gameOpName(gameID))
	}
	logging.Polling("stop_polling: %s", gameID)
}

func (e *Engine) snapshotState() (gameID string, polling bool, prev *types.GameSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentGameID, e.gamePolling, e.lastSnapshot
}

// tickGame implements the game-state loop (§4.4): fetch state, derive
// events, dispatch them, and handle terminal transitions. It short-
// circuits if StopPolling raced ahead of it — the in-flight tick is
// allowed to run, but it observes current_game_id cleared and returns
// without side effects (§5).
func (e *Engine) tickGame(ctx context.Context) {
	gameID, isPolling, prevSnapshot := e.snapshotState()
	if !isPolling || gameID == "" {
		return
	}

	var state *types.GameStateFull
	err := e.br.ExecuteSilent(ctx, e.gameOpName(gameID), func(c context.Context) error {
		s, gerr := e.api.GetGameState(c, gameID)
		if gerr != nil {
			return gerr
		}
		state = s
		return nil
	})

	if err != nil {
		if types.IsNotFound(err) {
			logging.PollingWarn("game %s not found, treating as ended", gameID)
			e.mu.Lock()
			lastState := e.lastState
			e.mu.Unlock()
			e.handleGameEnd(ctx, gameID, lastState)
			e.StopPolling()
		}
		// Transport error or open circuit: leave state untouched, retry
		// on the next scheduled tick.
		return
	}
	if state == nil {
		// Breaker open but not yet past reset window; ExecuteSilent
		// returned ErrOpen, already handled above as err != nil... this
		// branch only guards a defensive nil without an error.
		return
	}

	curr := state.Snapshot()
	evts := deriveAndLog(prevSnapshot, curr, *state)

	for _, ev := range evts {
		e.dispatchEvent(gameID, ev)
	}

	e.mu.Lock()
	e.lastSnapshot = &curr
	e.lastState = state
	e.mu.Unlock()

	logging.Audit().PollCycle(gameID, len(evts) > 0)
	if len(evts) > 0 {
		e.gameSched.RecordActivity()
	}

	if curr.Status == types.StatusCompleted {
		e.handleGameEnd(ctx, gameID, state)
		e.StopPolling()
	}
}

// dispatchEvent hands control to the Turn Orchestrator for the two event
// kinds it cares about (§4.5). The call runs in its own goroutine so the
// game loop's own tick cadence (and the "one tick in flight" invariant)
// is never blocked by a turn that takes multiple action-loop iterations.
func (e *Engine) dispatchEvent(gameID string, ev types.Event) {
	switch ev.Kind {
	case types.EventTurnStarted:
		go func() {
			if err := e.orch.OnTurnStarted(context.Background(), gameID); err != nil {
				logging.PollingDebug("turn orchestrator returned for %s: %v", gameID, err)
			}
		}()
	case types.EventChainWaiting:
		go func() {
			if err := e.orch.OnChainWaiting(context.Background(), gameID); err != nil {
				logging.PollingDebug("chain orchestrator returned for %s: %v", gameID, err)
			}
		}()
	}
}

// handleGameEnd resolves the winner, best-effort notifies the linked
// streaming session, and best-effort completes a story stage (§4.4).
func (e *Engine) handleGameEnd(ctx context.Context, gameID string, state *types.GameStateFull) {
	winner := "opponent"
	reason := ""
	if state != nil {
		switch {
		case state.Winner != "":
			winner = state.Winner
		case state.OpponentLifePoints <= 0 && state.MyLifePoints > 0:
			winner = "agent"
		}
		reason = state.EndReason
	}
	logging.Audit().GameEnd(gameID, winner)
	logging.Polling("game %s ended, winner=%s", gameID, winner)

	e.mu.Lock()
	streamingSessionID := e.streamingSessionID
	stageID := e.stageID
	e.mu.Unlock()

	if streamingSessionID != "" {
		fields := map[string]interface{}{
			"streaming_session_id": streamingSessionID,
			"winner":                winner,
			"reason":                reason,
		}
		if err := e.api.EmitAgentEvent(ctx, gameID, "game_result", fields); err != nil {
			logging.PollingDebug("publish result notice failed for %s: %v", gameID, err)
		}
	}

	if stageID != "" && e.cfg.Story.AutoContinue {
		if err := e.api.CompleteStoryStage(ctx, stageID, winner == "agent"); err != nil {
			logging.PollingDebug("complete_story_stage failed for stage %s: %v", stageID, err)
		} else {
			go e.requeueStory(streamingSessionID)
		}
	}
}

// requeueStory waits RequeueDelayMS and quick-plays into the next
// story-mode stage at the configured difficulty, then starts polling the
// new game. Best-effort: failures are logged at debug and never propagate
// (§4.4 handle_game_end).
func (e *Engine) requeueStory(streamingSessionID string) {
	delay := time.Duration(e.cfg.Story.RequeueDelayMS) * time.Millisecond
	if delay > 0 {
		time.Sleep(delay)
	}

	result, err := e.api.QuickPlayStory(context.Background(), e.cfg.Story.Difficulty)
	if err != nil {
		logging.PollingDebug("quick_play_story failed: %v", err)
		return
	}
	if result.GameID == "" {
		logging.PollingDebug("quick_play_story returned no game id, not requeuing")
		return
	}

	logging.Polling("quick_play_story requeued stage %s, game %s", result.StageID, result.GameID)
	e.StartPollingGame(result.GameID, StartOptions{
		StageID:            result.StageID,
		StreamingSessionID: streamingSessionID,
	})
}

// resolveDeckID resolves and caches the deck id matchmaking joins with:
// the preferred setting first, then the first deck the API returns
// (§4.4).
func (e *Engine) resolveDeckID(ctx context.Context) (string, error) {
	e.mu.Lock()
	cached := e.cachedDeckID
	e.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	if e.cfg.Polling.PreferredDeckID != "" {
		e.mu.Lock()
		e.cachedDeckID = e.cfg.Polling.PreferredDeckID
		e.mu.Unlock()
		return e.cfg.Polling.PreferredDeckID, nil
	}

	decks, err := e.api.GetDecks(ctx)
	if err != nil {
		return "", err
	}
	if len(decks) == 0 {
		return "", errNoDeckAvailable
	}

	e.mu.Lock()
	e.cachedDeckID = decks[0].DeckID
	e.mu.Unlock()
	return decks[0].DeckID, nil
}

var errNoDeckAvailable = &noDeckError{}

type noDeckError struct{}

func (*noDeckError) Error() string { return "no deck available to join lobby" }
