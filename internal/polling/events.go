package polling

import (
	"cardagent/internal/events"
	"cardagent/internal/types"
)

// deriveAndLog runs the Event Deriver and logs each derived event, giving
// tickGame a single call site (§4.5).
func deriveAndLog(prev *types.GameSnapshot, curr types.GameSnapshot, full types.GameStateFull) []types.Event {
	evts := events.Derive(prev, curr, full)
	events.Log(evts)
	return evts
}
