package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/enrichops/overseer/internal/supervise/strategy"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	for _, a := range cfg.Agents {
		if !a.Name.IsKnown() {
			return nil, fmt.Errorf("unknown agent %q in config", a.Name)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	def := strategy.DefaultConfig()
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = def.BaseDelay
	}
	if cfg.Retry.RateLimitDelay == 0 {
		cfg.Retry.RateLimitDelay = def.RateLimitDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = def.MaxDelay
	}
	if cfg.Retry.NetworkCap == 0 {
		cfg.Retry.NetworkCap = def.NetworkCap
	}
	if cfg.Retry.JitterFactor == 0 {
		cfg.Retry.JitterFactor = def.JitterFactor
	}

	if cfg.Supervision.LookbackWindow == 0 {
		cfg.Supervision.LookbackWindow = 6 * time.Hour
	}
	if cfg.Supervision.TimeoutBudget == 0 {
		cfg.Supervision.TimeoutBudget = 2 * time.Hour
	}
	if cfg.Supervision.RecheckAfter == 0 {
		cfg.Supervision.RecheckAfter = 30 * time.Minute
	}
	if cfg.Supervision.TriggerTimeout == 0 {
		cfg.Supervision.TriggerTimeout = 30 * time.Second
	}
	if cfg.Supervision.QueuePoll == 0 {
		cfg.Supervision.QueuePoll = 15 * time.Second
	}

	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = 10 * time.Second
	}
	if cfg.Health.WarnLatency == 0 {
		cfg.Health.WarnLatency = 500 * time.Millisecond
	}
	if cfg.Health.WarnHitRate == 0 {
		cfg.Health.WarnHitRate = 0.5
	}
	if cfg.Health.WarnFailures == 0 {
		cfg.Health.WarnFailures = 5
	}
	if cfg.Health.CriticalStale == 0 {
		cfg.Health.CriticalStale = 3
	}

	if cfg.Alert.Timeout == 0 {
		cfg.Alert.Timeout = 10 * time.Second
	}
}
