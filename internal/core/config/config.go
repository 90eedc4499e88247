package config

import (
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/health"
	redisclient "github.com/enrichops/overseer/internal/infra/redis"
	"github.com/enrichops/overseer/internal/infra/storage/postgres"
	"github.com/enrichops/overseer/internal/supervise/strategy"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
	Retry       RetryConfig        `yaml:"retry"`
	Supervision SupervisionConfig  `yaml:"supervision"`
	Agents      []AgentConfig      `yaml:"agents"`
	Health      HealthConfig       `yaml:"health"`
	Alert       AlertConfig        `yaml:"alert"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RetryConfig extends the strategy tuning with the orchestration mode.
type RetryConfig struct {
	strategy.Config `yaml:",inline"`
	Blocking        bool `yaml:"blocking"` // sleep in-request instead of queueing
}

// SupervisionConfig holds check-side timing settings.
type SupervisionConfig struct {
	LookbackWindow time.Duration `yaml:"lookback_window"`
	TimeoutBudget  time.Duration `yaml:"timeout_budget"`
	RecheckAfter   time.Duration `yaml:"recheck_after"`
	Interval       time.Duration `yaml:"interval"`        // 0 disables the internal ticker
	TriggerTimeout time.Duration `yaml:"trigger_timeout"` // agent trigger HTTP timeout
	QueuePoll      time.Duration `yaml:"queue_poll"`      // delayed-retry queue poll interval
}

// AgentConfig holds per-agent supervision settings.
type AgentConfig struct {
	Name     domain.Agent `yaml:"name"`
	MinYield int          `yaml:"min_yield"`
	URL      string       `yaml:"url"`   // execution trigger endpoint
	Token    string       `yaml:"token"` // bearer token for the trigger call
}

// HealthConfig holds probe settings.
type HealthConfig struct {
	ProbeTimeout  time.Duration           `yaml:"probe_timeout"`
	WarnLatency   time.Duration           `yaml:"warn_latency"`
	WarnHitRate   float64                 `yaml:"warn_hit_rate"`
	WarnFailures  int                     `yaml:"warn_failures"`
	CriticalStale int                     `yaml:"critical_stale"`
	APIs          []health.APIProbeConfig `yaml:"apis"`
	Completeness  CompletenessConfig      `yaml:"completeness"`
}

// CompletenessConfig configures the data-completeness probe; empty URL
// disables it.
type CompletenessConfig struct {
	URL           string  `yaml:"url"`
	Token         string  `yaml:"token"`
	WarnBelow     float64 `yaml:"warn_below"`
	CriticalBelow float64 `yaml:"critical_below"`
}

// AlertConfig configures escalation delivery; empty URL falls back to the
// structured log.
type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}
