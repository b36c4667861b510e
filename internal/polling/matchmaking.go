package polling

import (
	"sync"
	"time"
)

// matchmakingHistoryCap is the bounded ring size for joined-lobby records
// (§3 MatchmakingHistory).
const matchmakingHistoryCap = 50

// MatchmakingEntry is one successfully joined lobby.
type MatchmakingEntry struct {
	Timestamp time.Time
	LobbyID   string
	Host      string
	GameID    string
}

// MatchmakingStats is the read-only projection the State Aggregator and
// metrics fallback expose (§4.8).
type MatchmakingStats struct {
	Entries       []MatchmakingEntry
	LobbiesJoined int
	GamesStarted  int
	LastScanAt    time.Time
}

// matchmakingHistory owns the bounded ring plus counters (§3).
type matchmakingHistory struct {
	mu            sync.Mutex
	entries       []MatchmakingEntry
	lobbiesJoined int
	gamesStarted  int
	lastScanAt    time.Time
}

func newMatchmakingHistory() *matchmakingHistory {
	return &matchmakingHistory{}
}

// recordScan stamps the timestamp of the most recent lobby scan, whether
// or not it resulted in a join.
func (h *matchmakingHistory) recordScan(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastScanAt = at
}

// recordJoin appends a joined lobby, trimming the ring to its cap, and
// bumps both counters: joining a lobby here always starts a game (§4.4
// doesn't poll it, but the game is considered started from matchmaking's
// point of view).
func (h *matchmakingHistory) recordJoin(lobbyID, host, gameID string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, MatchmakingEntry{Timestamp: at, LobbyID: lobbyID, Host: host, GameID: gameID})
	if len(h.entries) > matchmakingHistoryCap {
		h.entries = h.entries[len(h.entries)-matchmakingHistoryCap:]
	}
	h.lobbiesJoined++
	h.gamesStarted++
}

func (h *matchmakingHistory) snapshot() MatchmakingStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]MatchmakingEntry, len(h.entries))
	copy(out, h.entries)
	return MatchmakingStats{
		Entries:       out,
		LobbiesJoined: h.lobbiesJoined,
		GamesStarted:  h.gamesStarted,
		LastScanAt:    h.lastScanAt,
	}
}
