// Package config holds the agent runtime's tunables: polling intervals,
// adaptive scheduling bounds, circuit breaker thresholds, decision-source
// rate limits, cache TTLs, and API credentials. Load starts from the
// defaults, applies an optional YAML file, then environment overrides; the
// result is read-only afterward.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agent runtime configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	API      APIConfig      `yaml:"api"`
	Polling  PollingConfig  `yaml:"polling"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Turn     TurnConfig     `yaml:"turn"`
	Story    StoryConfig    `yaml:"story"`
	Cache    CacheConfig    `yaml:"cache"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
	Decision DecisionConfig `yaml:"decision"`
}

// APIConfig holds remote game API credentials.
type APIConfig struct {
	Key     string `yaml:"key" json:"-"`
	URL     string `yaml:"url"`
	AgentID string `yaml:"agent_id"`
	AppURL  string `yaml:"app_url"`
}

// PollingConfig controls the three adaptive polling loops (§4.4).
type PollingConfig struct {
	PollIntervalMS       int  `yaml:"poll_interval_ms"`
	DiscoveryIntervalMS  int  `yaml:"discovery_interval_ms"`
	MatchmakingInterval  int  `yaml:"matchmaking_interval_ms"`
	AdaptivePolling      bool `yaml:"adaptive_polling"`
	IdleTimeoutMS        int  `yaml:"idle_timeout_ms"`
	IdleMultiplier       float64 `yaml:"idle_multiplier"`
	MaxIntervalMultiplier float64 `yaml:"max_interval_multiplier"`
	AutoMatchmaking      bool   `yaml:"auto_matchmaking"`
	PreferredDeckID      string `yaml:"preferred_deck_id"`
}

// BreakerConfig controls the per-operation circuit breaker (§4.2).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetWindow      time.Duration `yaml:"reset_window"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	HalfOpenSuccesses int          `yaml:"half_open_successes"`
}

// TurnConfig controls the Turn Orchestrator (§4.6).
type TurnConfig struct {
	ActionLoopDelayMS          int  `yaml:"action_loop_delay_ms"`
	MinModelDecisionIntervalMS int  `yaml:"min_model_decision_interval_ms"`
	MaxModelDecisionsPerTurn   int  `yaml:"max_model_decisions_per_turn"`
	ModelTier                  string `yaml:"model_tier"`
	ModelChainDecisions        bool `yaml:"model_chain_decisions"`
	MaxActionsPerTurn          int  `yaml:"max_actions_per_turn"`
	MaxConsecutiveFailures     int  `yaml:"max_consecutive_failures"`
	ChainTimeoutMS             int  `yaml:"chain_timeout_ms"`
}

// StoryConfig controls story-mode auto-continuation (§4.4 handle_game_end).
type StoryConfig struct {
	AutoContinue      bool   `yaml:"auto_continue_story_mode"`
	RequeueDelayMS    int    `yaml:"story_requeue_delay_ms"`
	Difficulty        string `yaml:"story_difficulty"`
}

// CacheConfig controls the State Aggregator's TTL caches (§4.8).
type CacheConfig struct {
	GameStateTTLMS   int `yaml:"cache_ttl_game_state_ms"`
	MatchmakingTTLMS int `yaml:"cache_ttl_matchmaking_ms"`
	MetricsTTLMS     int `yaml:"cache_ttl_metrics_ms"`
}

// WebhookConfig controls the optional inbound push path (§4.5, §6).
type WebhookConfig struct {
	Secret string `yaml:"secret" json:"-"`
}

// DecisionConfig configures the probabilistic decision source model tier.
type DecisionConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxRateLimitRetries int         `yaml:"max_rate_limit_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

// DefaultConfig returns the default configuration (§6 Configuration table).
func DefaultConfig() *Config {
	return &Config{
		Name:    "cardagent",
		Version: "0.1.0",

		Polling: PollingConfig{
			PollIntervalMS:        1500,
			DiscoveryIntervalMS:   5000,
			MatchmakingInterval:   10000,
			AdaptivePolling:       true,
			IdleTimeoutMS:         30000,
			IdleMultiplier:        1.5,
			MaxIntervalMultiplier: 5,
			AutoMatchmaking:       false,
		},

		Breaker: BreakerConfig{
			FailureThreshold:  5,
			ResetWindow:       60 * time.Second,
			BaseDelay:         1 * time.Second,
			MaxDelay:          30 * time.Second,
			MaxRetries:        3,
			HalfOpenSuccesses: 3,
		},

		Turn: TurnConfig{
			ActionLoopDelayMS:          1500,
			MinModelDecisionIntervalMS: 4000,
			MaxModelDecisionsPerTurn:   2,
			ModelTier:                  "small",
			ModelChainDecisions:        false,
			MaxActionsPerTurn:          16,
			MaxConsecutiveFailures:     2,
			ChainTimeoutMS:             30000,
		},

		Story: StoryConfig{
			AutoContinue:   true,
			RequeueDelayMS: 2500,
			Difficulty:     "medium",
		},

		Cache: CacheConfig{
			GameStateTTLMS:   2000,
			MatchmakingTTLMS: 5000,
			MetricsTTLMS:     10000,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},

		Decision: DecisionConfig{
			Provider:            "genai",
			Model:               "gemini-2.0-flash",
			Temperature:         0.1,
			MaxTokens:           512,
			MaxRateLimitRetries: 3,
			RetryBaseDelay:      1 * time.Second,
			RetryMaxDelay:       10 * time.Second,
		},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment variables are sufficient to run.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save persists configuration to a YAML file (best-effort, used only by
// operators inspecting resolved settings; the runtime never depends on it).
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "on")
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies the environment variables recognized by §6.
func (c *Config) applyEnvOverrides() {
	envInt("POLL_INTERVAL_MS", &c.Polling.PollIntervalMS)
	envInt("DISCOVERY_INTERVAL_MS", &c.Polling.DiscoveryIntervalMS)
	envInt("MATCHMAKING_INTERVAL_MS", &c.Polling.MatchmakingInterval)
	envBool("ADAPTIVE_POLLING", &c.Polling.AdaptivePolling)
	envInt("IDLE_TIMEOUT_MS", &c.Polling.IdleTimeoutMS)
	envFloat("IDLE_MULTIPLIER", &c.Polling.IdleMultiplier)
	envFloat("MAX_INTERVAL_MULTIPLIER", &c.Polling.MaxIntervalMultiplier)
	envBool("AUTO_MATCHMAKING", &c.Polling.AutoMatchmaking)
	envString("PREFERRED_DECK_ID", &c.Polling.PreferredDeckID)

	envInt("ACTION_LOOP_DELAY_MS", &c.Turn.ActionLoopDelayMS)
	envInt("MIN_MODEL_DECISION_INTERVAL_MS", &c.Turn.MinModelDecisionIntervalMS)
	envInt("MAX_MODEL_DECISIONS_PER_TURN", &c.Turn.MaxModelDecisionsPerTurn)
	envString("MODEL_TIER", &c.Turn.ModelTier)
	envBool("MODEL_CHAIN_DECISIONS", &c.Turn.ModelChainDecisions)

	envBool("AUTO_CONTINUE_STORY_MODE", &c.Story.AutoContinue)
	envInt("STORY_REQUEUE_DELAY_MS", &c.Story.RequeueDelayMS)
	envString("STORY_DIFFICULTY", &c.Story.Difficulty)

	envInt("CACHE_TTL_GAME_STATE_MS", &c.Cache.GameStateTTLMS)
	envInt("CACHE_TTL_MATCHMAKING_MS", &c.Cache.MatchmakingTTLMS)
	envInt("CACHE_TTL_METRICS_MS", &c.Cache.MetricsTTLMS)

	envString("WEBHOOK_SECRET", &c.Webhook.Secret)

	envString("API_KEY", &c.API.Key)
	envString("API_URL", &c.API.URL)
	envString("AGENT_ID", &c.API.AgentID)
	envString("APP_URL", &c.API.AppURL)
}

// PollInterval returns the game-state poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.PollIntervalMS) * time.Millisecond
}

// DiscoveryInterval returns the discovery loop interval as a duration.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Polling.DiscoveryIntervalMS) * time.Millisecond
}

// MatchmakingInterval returns the matchmaking loop interval as a duration.
func (c *Config) MatchmakingInterval() time.Duration {
	return time.Duration(c.Polling.MatchmakingInterval) * time.Millisecond
}

// IdleTimeout returns the adaptive scheduler idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Polling.IdleTimeoutMS) * time.Millisecond
}

// GameStateTTL returns the State Aggregator's game-state cache TTL.
func (c *CacheConfig) GameStateTTL() time.Duration {
	return time.Duration(c.GameStateTTLMS) * time.Millisecond
}

// MatchmakingTTL returns the State Aggregator's matchmaking cache TTL.
func (c *CacheConfig) MatchmakingTTL() time.Duration {
	return time.Duration(c.MatchmakingTTLMS) * time.Millisecond
}

// MetricsTTL returns the State Aggregator's metrics cache TTL.
func (c *CacheConfig) MetricsTTL() time.Duration {
	return time.Duration(c.MetricsTTLMS) * time.Millisecond
}

// ActionLoopDelay returns the orchestrator's between-action sleep.
func (c *Config) ActionLoopDelay() time.Duration {
	return time.Duration(c.Turn.ActionLoopDelayMS) * time.Millisecond
}

// MinModelDecisionInterval returns the minimum spacing between model calls.
func (c *Config) MinModelDecisionInterval() time.Duration {
	return time.Duration(c.Turn.MinModelDecisionIntervalMS) * time.Millisecond
}

// Validate checks that credentials required to talk to the remote API are present.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("API_KEY not configured")
	}
	if c.API.URL == "" {
		return fmt.Errorf("API_URL not configured")
	}
	return nil
}
