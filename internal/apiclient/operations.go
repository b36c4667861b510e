package apiclient

import (
	"context"
	"fmt"

	"cardagent/internal/types"
)

// GameStateResponse mirrors the remote API's state payload (§6).
type GameStateResponse struct {
	types.GameStateFull
}

// AvailableActionsResponse mirrors the remote API's legality payload (§6).
type AvailableActionsResponse struct {
	Actions []types.ActionDescriptor `json:"actions"`
}

// LobbySummary is one entry in get_lobbies.
type LobbySummary struct {
	LobbyID string `json:"lobby_id"`
	Host    string `json:"host"`
}

// PendingTurn is one entry in get_pending_turns.
type PendingTurn struct {
	GameID     string `json:"game_id"`
	TurnNumber int    `json:"turn_number"`
}

// Deck is one entry in get_decks.
type Deck struct {
	DeckID string `json:"deck_id"`
	Name   string `json:"name"`
}

// GetGameState fetches the authoritative state for a game.
func (c *Client) GetGameState(ctx context.Context, gameID string) (*types.GameStateFull, error) {
	var resp GameStateResponse
	if err := c.do(ctx, "GET", "/games/"+gameID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.GameStateFull, nil
}

// GetAvailableActions fetches the server's legal-action list for a game.
func (c *Client) GetAvailableActions(ctx context.Context, gameID string) (*types.AvailableActions, error) {
	var resp AvailableActionsResponse
	if err := c.do(ctx, "GET", "/games/"+gameID+"/actions", nil, &resp); err != nil {
		return nil, err
	}
	return &types.AvailableActions{Actions: resp.Actions}, nil
}

// GetGameHistory fetches recent opponent actions for a game.
func (c *Client) GetGameHistory(ctx context.Context, gameID string) ([]string, error) {
	var resp struct {
		Entries []string `json:"entries"`
	}
	if err := c.do(ctx, "GET", "/games/"+gameID+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// GetPendingTurns fetches games where it is this agent's turn.
func (c *Client) GetPendingTurns(ctx context.Context) ([]PendingTurn, error) {
	var resp struct {
		Turns []PendingTurn `json:"turns"`
	}
	if err := c.do(ctx, "GET", "/agent/pending-turns", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Turns, nil
}

// GetLobbies lists open lobbies. scope is typically "all".
func (c *Client) GetLobbies(ctx context.Context, scope string) ([]LobbySummary, error) {
	var resp struct {
		Lobbies []LobbySummary `json:"lobbies"`
	}
	if err := c.do(ctx, "GET", "/lobbies?scope="+scope, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lobbies, nil
}

// JoinLobby joins a lobby with the given deck and returns the resulting game id.
func (c *Client) JoinLobby(ctx context.Context, lobbyID, deckID string) (string, error) {
	var resp struct {
		GameID string `json:"game_id"`
	}
	body := map[string]string{"deck_id": deckID}
	if err := c.do(ctx, "POST", "/lobbies/"+lobbyID+"/join", body, &resp); err != nil {
		return "", err
	}
	return resp.GameID, nil
}

// GetDecks lists the agent's available decks.
func (c *Client) GetDecks(ctx context.Context) ([]Deck, error) {
	var resp struct {
		Decks []Deck `json:"decks"`
	}
	if err := c.do(ctx, "GET", "/agent/decks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Decks, nil
}

// GetAgentProfile fetches the agent's profile/stats.
func (c *Client) GetAgentProfile(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.do(ctx, "GET", "/agent/profile", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// actionRequest is the generic mutation body for board actions.
type actionRequest struct {
	CardID     string                 `json:"card_id,omitempty"`
	TributeIDs []string               `json:"tribute_ids,omitempty"`
	TargetID   string                 `json:"target_id,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

func (c *Client) postAction(ctx context.Context, gameID, endpoint string, body actionRequest) error {
	return c.do(ctx, "POST", fmt.Sprintf("/games/%s/%s", gameID, endpoint), body, nil)
}

// Summon executes a monster summon, with inferred tribute ids if required.
func (c *Client) Summon(ctx context.Context, gameID, cardID string, tributeIDs []string) error {
	return c.postAction(ctx, gameID, "summon", actionRequest{CardID: cardID, TributeIDs: tributeIDs})
}

// SetMonster sets a monster card face-down, with inferred tribute ids if required.
func (c *Client) SetMonster(ctx context.Context, gameID, cardID string, tributeIDs []string) error {
	return c.postAction(ctx, gameID, "set", actionRequest{CardID: cardID, TributeIDs: tributeIDs})
}

// SetSpellTrap sets a spell or trap card face-down. This is a distinct
// endpoint from monster sets (§4.6.4): spell/trap sets never carry tributes.
func (c *Client) SetSpellTrap(ctx context.Context, gameID, cardID string) error {
	return c.postAction(ctx, gameID, "set-spell-trap", actionRequest{CardID: cardID})
}

// ActivateSpell activates a spell card already on the field or from hand.
func (c *Client) ActivateSpell(ctx context.Context, gameID, cardID string) error {
	return c.postAction(ctx, gameID, "activate-spell", actionRequest{CardID: cardID})
}

// Attack declares an attack from attackerID against targetID ("" for direct attack).
func (c *Client) Attack(ctx context.Context, gameID, attackerID, targetID string) error {
	return c.postAction(ctx, gameID, "attack", actionRequest{CardID: attackerID, TargetID: targetID})
}

// ChangePosition flips a monster between attack and defense position.
func (c *Client) ChangePosition(ctx context.Context, gameID, cardID string) error {
	return c.postAction(ctx, gameID, "change-position", actionRequest{CardID: cardID})
}

// FlipSummon flips a face-down monster face-up.
func (c *Client) FlipSummon(ctx context.Context, gameID, cardID string) error {
	return c.postAction(ctx, gameID, "flip-summon", actionRequest{CardID: cardID})
}

// EnterBattlePhase advances the turn into the battle phase.
func (c *Client) EnterBattlePhase(ctx context.Context, gameID string) error {
	return c.postAction(ctx, gameID, "enter-battle-phase", actionRequest{})
}

// EnterMainPhase2 advances the turn into the second main phase.
func (c *Client) EnterMainPhase2(ctx context.Context, gameID string) error {
	return c.postAction(ctx, gameID, "enter-main-phase-2", actionRequest{})
}

// EndTurn ends the current turn.
func (c *Client) EndTurn(ctx context.Context, gameID string) error {
	return c.postAction(ctx, gameID, "end-turn", actionRequest{})
}

// ChainResponse responds to a pending chain: pass, or play cardID.
func (c *Client) ChainResponse(ctx context.Context, gameID string, pass bool, cardID string) error {
	body := actionRequest{CardID: cardID, Parameters: map[string]interface{}{"pass": pass}}
	return c.postAction(ctx, gameID, "chain-response", body)
}

// Surrender forfeits the game.
func (c *Client) Surrender(ctx context.Context, gameID string) error {
	return c.postAction(ctx, gameID, "surrender", actionRequest{})
}

// EmitAgentEvent publishes a best-effort telemetry event for a game.
func (c *Client) EmitAgentEvent(ctx context.Context, gameID, eventType string, fields map[string]interface{}) error {
	body := map[string]interface{}{"event_type": eventType, "fields": fields}
	return c.do(ctx, "POST", "/games/"+gameID+"/events", body, nil)
}

// SaveDecision persists a Decision record, fire-and-forget from the caller's perspective.
func (c *Client) SaveDecision(ctx context.Context, gameID string, d types.Decision) error {
	return c.do(ctx, "POST", "/games/"+gameID+"/decisions", d, nil)
}

// CompleteStoryStage marks a story-mode stage complete.
func (c *Client) CompleteStoryStage(ctx context.Context, stageID string, success bool) error {
	body := map[string]interface{}{"success": success}
	return c.do(ctx, "POST", "/story/stages/"+stageID+"/complete", body, nil)
}

// QuickPlayResult identifies the story-mode stage and game a quick_play_story
// call requeued into.
type QuickPlayResult struct {
	StageID string `json:"stage_id"`
	GameID  string `json:"game_id"`
}

// QuickPlayStory requeues into another story-mode stage at the given difficulty.
func (c *Client) QuickPlayStory(ctx context.Context, difficulty string) (QuickPlayResult, error) {
	var resp QuickPlayResult
	body := map[string]string{"difficulty": difficulty}
	if err := c.do(ctx, "POST", "/story/quick-play", body, &resp); err != nil {
		return QuickPlayResult{}, err
	}
	return resp, nil
}
