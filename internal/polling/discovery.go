package polling

import (
	"context"

	"cardagent/internal/apiclient"
	"cardagent/internal/logging"
)

// tickDiscovery implements the discovery loop (§4.4): poll pending turns,
// and if any belongs to a game not currently being polled, start polling
// the first such game. Only that one transition counts as activity; an
// empty or fully-current result is a no-op tick.
func (e *Engine) tickDiscovery(ctx context.Context) {
	var turns []apiclient.PendingTurn
	err := e.br.Execute(ctx, "check_pending_turns", func(c context.Context) error {
		t, gerr := e.api.GetPendingTurns(c)
		if gerr != nil {
			return gerr
		}
		turns = t
		return nil
	})
	if err != nil {
		return
	}

	current := e.CurrentGameID()

	for _, t := range turns {
		if t.GameID == current {
			continue
		}
		logging.Discovery("pending turn for new game %s (turn %d), starting poll", t.GameID, t.TurnNumber)
		e.StartPollingGame(t.GameID, StartOptions{})
		e.discoverySched.RecordActivity()
		return
	}
}
