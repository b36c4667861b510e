package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEngine struct {
	mu                 sync.Mutex
	isPolling          bool
	currentGameID      string
	streamingSessionID string
	stopped            bool
}

func (f *fakeEngine) IsPolling() bool           { return f.isPolling }
func (f *fakeEngine) CurrentGameID() string     { return f.currentGameID }
func (f *fakeEngine) StreamingSessionID() string { return f.streamingSessionID }
func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}
func (f *fakeEngine) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeAPI struct {
	mu              sync.Mutex
	surrenderedGame string
	emittedEvents   []string
}

func (f *fakeAPI) Surrender(ctx context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surrenderedGame = gameID
	return nil
}

func (f *fakeAPI) EmitAgentEvent(ctx context.Context, gameID, eventType string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emittedEvents = append(f.emittedEvents, eventType)
	return nil
}

type fakeBreaker struct {
	resetAllCalled bool
}

func (f *fakeBreaker) ResetAll() { f.resetAllCalled = true }

type fakeHistory struct {
	clearAllCalled bool
}

func (f *fakeHistory) ClearAll() { f.clearAllCalled = true }

func TestShutdownSurrendersActiveGameBeforeStoppingEngine(t *testing.T) {
	engine := &fakeEngine{isPolling: true, currentGameID: "g1", streamingSessionID: "s1"}
	api := &fakeAPI{}
	br := &fakeBreaker{}
	hist := &fakeHistory{}
	l := New(engine, api, br, hist)

	l.Shutdown(context.Background())

	api.mu.Lock()
	assert.Equal(t, "g1", api.surrenderedGame)
	assert.Contains(t, api.emittedEvents, "agent_shutdown")
	api.mu.Unlock()
	assert.True(t, engine.wasStopped())
	assert.True(t, br.resetAllCalled)
	assert.True(t, hist.clearAllCalled)
}

func TestShutdownSkipsSurrenderWhenNotPolling(t *testing.T) {
	engine := &fakeEngine{isPolling: false, currentGameID: ""}
	api := &fakeAPI{}
	br := &fakeBreaker{}
	hist := &fakeHistory{}
	l := New(engine, api, br, hist)

	l.Shutdown(context.Background())

	api.mu.Lock()
	assert.Equal(t, "", api.surrenderedGame)
	api.mu.Unlock()
	assert.True(t, engine.wasStopped())
	assert.True(t, br.resetAllCalled)
	assert.True(t, hist.clearAllCalled)
}

func TestShutdownSkipsStreamingNotifyWhenNoSessionID(t *testing.T) {
	engine := &fakeEngine{isPolling: true, currentGameID: "g1", streamingSessionID: ""}
	api := &fakeAPI{}
	l := New(engine, api, &fakeBreaker{}, &fakeHistory{})

	l.Shutdown(context.Background())

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, "g1", api.surrenderedGame)
	assert.Empty(t, api.emittedEvents)
}

func TestShutdownToleratesNilCollaborators(t *testing.T) {
	l := New(nil, nil, nil, nil)
	assert.NotPanics(t, func() {
		l.Shutdown(context.Background())
	})
}

func TestShutdownToleratesNilAPIWithActiveEngine(t *testing.T) {
	engine := &fakeEngine{isPolling: true, currentGameID: "g1"}
	br := &fakeBreaker{}
	hist := &fakeHistory{}
	l := New(engine, nil, br, hist)

	assert.NotPanics(t, func() {
		l.Shutdown(context.Background())
	})
	assert.True(t, engine.wasStopped())
	assert.True(t, br.resetAllCalled)
	assert.True(t, hist.clearAllCalled)
}
