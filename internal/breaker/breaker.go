// Package breaker implements the per-operation circuit breaker that wraps
// every call the polling engine and turn orchestrator make through the
// API client (§4.2). Each named operation gets its own independent state
// machine; a game's breaker tripping never affects another game's calls.
package breaker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"cardagent/internal/config"
	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// State is one operation's circuit state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when an operation's circuit is open and
// the reset window has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit open")

type opState struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenSuccess  int
	openedAt         time.Time
	retryDelay       time.Duration
}

// Breaker tracks circuit state per operation name.
type Breaker struct {
	cfg config.BreakerConfig

	mu    sync.Mutex
	ops   map[string]*opState
	rng   *rand.Rand
	rngMu sync.Mutex
}

// New creates a Breaker from the given config.
func New(cfg config.BreakerConfig) *Breaker {
	return &Breaker{
		cfg: cfg,
		ops: make(map[string]*opState),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *Breaker) state(name string) *opState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.ops[name]
	if !ok {
		s = &opState{retryDelay: b.cfg.BaseDelay}
		b.ops[name] = s
	}
	return s
}

func (b *Breaker) jitter() time.Duration {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return time.Duration(b.rng.Int63n(int64(500 * time.Millisecond)))
}

// nextDelay implements next = min(current*2 + U(0,500ms), max_delay).
func (b *Breaker) nextDelay(current time.Duration) time.Duration {
	next := current*2 + b.jitter()
	if next > b.cfg.MaxDelay {
		next = b.cfg.MaxDelay
	}
	return next
}

// Execute runs op under name's circuit. If the circuit is open and the
// reset window has not elapsed, it returns ErrOpen without calling op. A
// NotFoundError never counts as a circuit failure: the caller already
// knows definitively that retrying is pointless (§4.2 edge cases).
func (b *Breaker) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return b.execute(ctx, name, op, false)
}

// ExecuteSilent is Execute with routine per-call open-circuit warnings
// suppressed (logged at debug instead), for callers that tick frequently
// against an operation expected to be open for stretches — the hot
// game-state poll being the canonical case (§4.2).
func (b *Breaker) ExecuteSilent(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return b.execute(ctx, name, op, true)
}

func (b *Breaker) execute(ctx context.Context, name string, op func(ctx context.Context) error, silent bool) error {
	s := b.state(name)

	s.mu.Lock()
	if s.state == StateOpen {
		if time.Since(s.openedAt) < b.cfg.ResetWindow {
			delay := b.cfg.ResetWindow - time.Since(s.openedAt)
			s.mu.Unlock()
			if silent {
				logging.BreakerDebug("circuit %q open, %s remaining in reset window", name, delay)
			} else {
				logging.BreakerWarn("circuit %q open, %s remaining in reset window", name, delay)
			}
			return ErrOpen
		}
		s.state = StateHalfOpen
		s.halfOpenSuccess = 0
		logging.Breaker("circuit %q entering half-open probe", name)
	}
	s.mu.Unlock()

	err := op(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		b.onSuccess(name, s)
		return nil
	}

	if types.IsNotFound(err) {
		// The resource is gone; this is not a transient failure worth
		// tripping the breaker over.
		return err
	}

	b.onFailure(name, s, err)
	return err
}

func (b *Breaker) onSuccess(name string, s *opState) {
	switch s.state {
	case StateHalfOpen:
		s.halfOpenSuccess++
		if s.halfOpenSuccess >= b.cfg.HalfOpenSuccesses {
			s.state = StateClosed
			s.consecutiveFails = 0
			s.retryDelay = b.cfg.BaseDelay
			logging.Breaker("circuit %q closed after %d probe successes", name, s.halfOpenSuccess)
		}
	case StateClosed:
		s.consecutiveFails = 0
		s.retryDelay = b.cfg.BaseDelay
	}
}

func (b *Breaker) onFailure(name string, s *opState, err error) {
	if s.state == StateHalfOpen {
		s.state = StateOpen
		s.openedAt = time.Now()
		s.retryDelay = b.nextDelay(s.retryDelay)
		logging.BreakerWarn("circuit %q reopened during probe: %v", name, err)
		return
	}

	s.consecutiveFails++
	if s.consecutiveFails >= b.cfg.FailureThreshold {
		s.state = StateOpen
		s.openedAt = time.Now()
		s.retryDelay = b.nextDelay(s.retryDelay)
		logging.BreakerWarn("circuit %q opened after %d consecutive failures: %v", name, s.consecutiveFails, err)
	}
}

// StateOf reports the current state of a named operation's circuit,
// primarily for the State Aggregator's health projection.
func (b *Breaker) StateOf(name string) State {
	s := b.state(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset clears a single operation's circuit back to closed, used when a
// game ends and its per-game operation names (e.g. poll_game_<id>) no
// longer need tracked state.
func (b *Breaker) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ops, name)
}

// ResetAll clears every tracked operation, used on process shutdown
// (§5: "clear circuit breakers and retry delays" is the last shutdown step).
func (b *Breaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = make(map[string]*opState)
}

// AnyOpen reports whether any tracked operation's circuit is currently
// open, the basis for get_health_status's is_healthy flag (§7).
func (b *Breaker) AnyOpen() bool {
	b.mu.Lock()
	ops := make([]*opState, 0, len(b.ops))
	for _, s := range b.ops {
		ops = append(ops, s)
	}
	b.mu.Unlock()

	for _, s := range ops {
		s.mu.Lock()
		open := s.state == StateOpen
		s.mu.Unlock()
		if open {
			return true
		}
	}
	return false
}
