package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerTicksImmediately(t *testing.T) {
	var count int64
	s := New(Config{
		Name:         "test",
		BaseInterval: 5 * time.Millisecond,
		Adaptive:     false,
	}, func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	})
	s.Start()
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(2))
}

func TestRecordActivityResetsMultiplier(t *testing.T) {
	s := New(Config{
		Name:           "test",
		BaseInterval:   5 * time.Millisecond,
		IdleTimeout:    1 * time.Millisecond,
		IdleMultiplier: 2,
		MaxMultiplier:  5,
		Adaptive:       true,
	}, func(ctx context.Context) {})
	s.Start()
	defer s.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.Greater(t, s.Multiplier(), 1.0)

	s.RecordActivity()
	assert.Equal(t, 1.0, s.Multiplier())
}

func TestMultiplierCapsAtMax(t *testing.T) {
	s := New(Config{
		Name:           "test",
		BaseInterval:   1 * time.Millisecond,
		IdleTimeout:    1 * time.Nanosecond,
		IdleMultiplier: 10,
		MaxMultiplier:  2,
		Adaptive:       true,
	}, func(ctx context.Context) {})
	s.Start()
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, s.Multiplier(), 2.0)
}

func TestStopIsIdempotentAndCooperative(t *testing.T) {
	s := New(Config{
		Name:         "test",
		BaseInterval: 5 * time.Millisecond,
	}, func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Millisecond):
		}
	})
	s.Start()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()
}
