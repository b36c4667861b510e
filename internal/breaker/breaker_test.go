package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardagent/internal/config"
	"cardagent/internal/types"
)

func testConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold:  3,
		ResetWindow:       20 * time.Millisecond,
		BaseDelay:         1 * time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		MaxRetries:        3,
		HalfOpenSuccesses: 2,
	}
}

func TestExecuteOpensAfterThreshold(t *testing.T) {
	b := New(testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), "op", failing)
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.StateOf("op"))

	err := b.Execute(context.Background(), "op", failing)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestExecuteHalfOpenThenCloses(t *testing.T) {
	b := New(testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }
	succeeding := func(ctx context.Context) error { return nil }

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), "op", failing)
	}
	require.Equal(t, StateOpen, b.StateOf("op"))

	time.Sleep(25 * time.Millisecond)

	require.NoError(t, b.Execute(context.Background(), "op", succeeding))
	assert.Equal(t, StateHalfOpen, b.StateOf("op"))

	require.NoError(t, b.Execute(context.Background(), "op", succeeding))
	assert.Equal(t, StateClosed, b.StateOf("op"))
}

func TestNotFoundDoesNotTripCircuit(t *testing.T) {
	b := New(testConfig())
	notFound := func(ctx context.Context) error { return &types.NotFoundError{Message: "gone"} }

	for i := 0; i < 5; i++ {
		err := b.Execute(context.Background(), "op", notFound)
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, b.StateOf("op"))
}

func TestIndependentOperations(t *testing.T) {
	b := New(testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), "op_a", failing)
	}
	assert.Equal(t, StateOpen, b.StateOf("op_a"))
	assert.Equal(t, StateClosed, b.StateOf("op_b"))
}

func TestReset(t *testing.T) {
	b := New(testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), "op", failing)
	}
	require.Equal(t, StateOpen, b.StateOf("op"))
	b.Reset("op")
	assert.Equal(t, StateClosed, b.StateOf("op"))
}

func TestNextDelayCapsAtMax(t *testing.T) {
	b := New(testConfig())
	d := b.nextDelay(100 * time.Second)
	assert.Equal(t, b.cfg.MaxDelay, d)
}
