package polling

import (
	"context"
	"time"

	"cardagent/internal/apiclient"
	"cardagent/internal/logging"
)

// tickMatchmaking implements the matchmaking loop (§4.4): if a game is
// already active, skip entirely (§5's current_game_id guard — matchmaking
// never joins a new lobby while a game is in flight). Otherwise scan
// lobbies, resolve a deck, and join the first one found. Polling the
// joined game is left to the next discovery tick, not started here.
func (e *Engine) tickMatchmaking(ctx context.Context) {
	if e.IsPolling() {
		return
	}

	var lobbies []apiclient.LobbySummary
	err := e.br.Execute(ctx, "check_lobbies", func(c context.Context) error {
		l, gerr := e.api.GetLobbies(c, "all")
		if gerr != nil {
			return gerr
		}
		lobbies = l
		return nil
	})
	e.mm.recordScan(time.Now())
	if err != nil || len(lobbies) == 0 {
		return
	}

	lobby := lobbies[0]

	deckID, err := e.resolveDeckID(ctx)
	if err != nil || deckID == "" {
		logging.MatchmakingWarn("no deck available to join lobby %s: %v", lobby.LobbyID, err)
		return
	}

	var gameID string
	err = e.br.Execute(ctx, "join_lobby_"+lobby.LobbyID, func(c context.Context) error {
		g, jerr := e.api.JoinLobby(c, lobby.LobbyID, deckID)
		if jerr != nil {
			return jerr
		}
		gameID = g
		return nil
	})
	if err != nil || gameID == "" {
		return
	}

	e.mm.recordJoin(lobby.LobbyID, lobby.Host, gameID, time.Now())
	e.matchmakingSched.RecordActivity()
	logging.Matchmaking("joined lobby %s (host %s), game %s", lobby.LobbyID, lobby.Host, gameID)
}
