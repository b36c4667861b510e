// Package decision implements the probabilistic decision source (§4.6.3):
// a rate-limited client over an external language model that turns a
// structured prompt into a single JSON decision object. It is a sum-typed
// capability, not a hard dependency — deterministic heuristics in
// internal/orchestrator always run first, and a nil Source degrades every
// call site straight to the fallback selector.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"cardagent/internal/config"
	"cardagent/internal/logging"
	"cardagent/internal/types"
)

// Response is the parsed shape of a model decision (§4.6.3).
type Response struct {
	Action     string                 `json:"action"`
	Reasoning  string                 `json:"reasoning"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ChainResponse is the parsed shape of a model chain decision (§4.6.5).
type ChainResponse struct {
	Chain  bool   `json:"chain"`
	CardID string `json:"card_id"`
}

// Source produces a decision from a textual prompt. Implemented by Client;
// tests substitute a stub.
type Source interface {
	Decide(ctx context.Context, prompt string) (Response, error)
	DecideChain(ctx context.Context, prompt string) (ChainResponse, error)
}

// Client wraps google.golang.org/genai behind the rate-limited, low-latency
// contract the Turn Orchestrator expects.
type Client struct {
	genai       *genai.Client
	model       string
	cfg         config.TurnConfig
	decisionCfg config.DecisionConfig

	mu         sync.Mutex
	lastCallAt time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Client. apiKey must be non-empty; callers typically guard
// construction behind config.API.Key / a decision-source feature flag.
func New(ctx context.Context, apiKey string, decisionCfg config.DecisionConfig, turnCfg config.TurnConfig) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("decision source API key is required")
	}
	model := decisionCfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	cl, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		genai:       cl,
		model:       model,
		cfg:         turnCfg,
		decisionCfg: decisionCfg,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// waitForSpacing blocks until at least MinModelDecisionInterval has elapsed
// since the previous call (§4.6.3's per-turn spacing requirement).
func (c *Client) waitForSpacing(ctx context.Context) error {
	c.mu.Lock()
	minGap := time.Duration(c.cfg.MinModelDecisionIntervalMS) * time.Millisecond
	wait := minGap - time.Since(c.lastCallAt)
	if wait < 0 {
		wait = 0
	}
	c.lastCallAt = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRateLimited reports whether err looks like an HTTP 429 / quota-exhausted
// response from the model provider.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota exceeded")
}

func (c *Client) retryJitter() time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return time.Duration(c.rng.Int63n(int64(250 * time.Millisecond)))
}

// nextRetryDelay implements next = min(current*2 + U(0,250ms), max_delay),
// mirroring the circuit breaker's backoff shape (§4.2).
func (c *Client) nextRetryDelay(current time.Duration) time.Duration {
	max := c.decisionCfg.RetryMaxDelay
	if max <= 0 {
		max = 10 * time.Second
	}
	next := current*2 + c.retryJitter()
	if next > max {
		next = max
	}
	return next
}

// generate performs one low-temperature, short-budget completion call,
// retrying with exponential backoff on a rate-limited (429) response up to
// MaxRateLimitRetries times. Any other failure, or a retry budget of zero,
// surfaces immediately.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	delay := c.decisionCfg.RetryBaseDelay
	if delay <= 0 {
		delay = 1 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= c.decisionCfg.MaxRateLimitRetries; attempt++ {
		if attempt > 0 {
			logging.DecisionDebug("rate limited, retrying in %s (attempt %d/%d)", delay, attempt, c.decisionCfg.MaxRateLimitRetries)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
			delay = c.nextRetryDelay(delay)
		}

		if err := c.waitForSpacing(ctx); err != nil {
			return "", err
		}

		start := time.Now()
		temp := float32(0.1)
		maxTokens := int32(512)

		resp, err := c.genai.Models.GenerateContent(ctx, c.model,
			[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
			&genai.GenerateContentConfig{
				Temperature:     &temp,
				MaxOutputTokens: maxTokens,
			},
		)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			lastErr = err
			logging.DecisionError("model call failed after %dms: %v", elapsed, err)
			logging.Audit().DecisionCall("", 0, elapsed, false, err.Error())
			if isRateLimited(err) && attempt < c.decisionCfg.MaxRateLimitRetries {
				continue
			}
			return "", fmt.Errorf("decision source call failed: %w", err)
		}

		text := resp.Text()
		logging.DecisionDebug("model call completed in %dms, %d chars", elapsed, len(text))
		logging.Audit().DecisionCall("", len(text), elapsed, true, "")
		return text, nil
	}
	return "", fmt.Errorf("decision source call failed: %w", lastErr)
}

// Decide sends prompt to the model and parses the first balanced JSON
// object in the reply per §4.6.3. Malformed or absent JSON is a
// types.ParseError; callers degrade to END_TURN on that error.
func (c *Client) Decide(ctx context.Context, prompt string) (Response, error) {
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return Response{}, err
	}

	raw, ok := extractJSONObject(text)
	if !ok {
		return Response{}, &types.ParseError{Raw: text}
	}

	var r Response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Response{}, &types.ParseError{Raw: raw}
	}
	r.Action = NormalizeActionName(r.Action)
	return r, nil
}

// DecideChain sends a chain-response prompt and parses {chain, card_id}.
func (c *Client) DecideChain(ctx context.Context, prompt string) (ChainResponse, error) {
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return ChainResponse{}, err
	}

	raw, ok := extractJSONObject(text)
	if !ok {
		return ChainResponse{}, &types.ParseError{Raw: text}
	}

	var r ChainResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ChainResponse{}, &types.ParseError{Raw: raw}
	}
	return r, nil
}

// extractJSONObject finds the first balanced {...} span in s and returns it.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// aliasMap maps common misspellings / alternate names the model produces
// onto the canonical action vocabulary (§4.6.3).
var aliasMap = map[string]types.CanonicalAction{
	"NORMAL_SUMMON":     types.ActionSummonMonster,
	"TRIBUTE_SUMMON":    types.ActionSummonMonster,
	"SUMMON":            types.ActionSummonMonster,
	"SET_MONSTER":       types.ActionSetCard,
	"SET":               types.ActionSetCard,
	"ACTIVATE":          types.ActionActivateSpell,
	"CAST_SPELL":        types.ActionActivateSpell,
	"DECLARE_ATTACK":    types.ActionAttack,
	"BATTLE_PHASE":      types.ActionEnterBattlePhase,
	"MAIN_PHASE_2":      types.ActionEnterMainPhase2,
	"MAIN2":             types.ActionEnterMainPhase2,
	"FLIP":              types.ActionFlipSummon,
	"PASS":              types.ActionEndTurn,
	"END":               types.ActionEndTurn,
	"PASS_TURN":         types.ActionEndTurn,
}

// NormalizeActionName maps a raw model action string onto the canonical
// set, returning the canonical name unchanged when it already matches and
// "" when the name is unrecognized (callers degrade to END_TURN on "").
func NormalizeActionName(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return ""
	}

	for _, canon := range []types.CanonicalAction{
		types.ActionSummonMonster, types.ActionSetCard, types.ActionActivateSpell,
		types.ActionActivateTrap, types.ActionAttack, types.ActionEnterBattlePhase,
		types.ActionEnterMainPhase2, types.ActionChangePosition, types.ActionFlipSummon,
		types.ActionEndTurn, types.ActionChainResponse, types.ActionPassChain,
	} {
		if string(canon) == upper {
			return upper
		}
	}

	if canon, ok := aliasMap[upper]; ok {
		return string(canon)
	}
	return ""
}
