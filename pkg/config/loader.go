package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Read the config file (JSON; optional when path is empty)
//  3. Expand environment variables via {{.VAR}} templates
//  4. Merge file values over defaults
//  5. Apply PCE_* environment overrides field by field
//  6. Validate the result
func Initialize(ctx context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"api_port", cfg.APIPort,
		"state_db_path", cfg.StateDBPath,
		"llm_configured", cfg.OpenRouter.Configured(),
		"slack_enabled", cfg.Slack.Enabled())

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configPath = path

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, NewLoadError(path, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
			}
			return nil, NewLoadError(path, err)
		}

		// Expand environment variables using {{.VAR}} template syntax
		data = ExpandEnv(data)

		// The config file is JSON; the YAML parser accepts it as a
		// strict superset and tolerates comments if operators add them.
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}

		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("failed to merge config file: %w", err))
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies PCE_* environment variables over the loaded
// configuration. The unprefixed OPENROUTER_API_KEY / OPENROUTER_MODEL names
// are honored too (operator docs reference them); the PCE_ form wins.
func applyEnvOverrides(cfg *Config) {
	envInt("PCE_API_PORT", &cfg.APIPort)
	envString("PCE_STATE_DB_PATH", &cfg.StateDBPath)

	envString("OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey)
	envString("PCE_OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey)
	envString("OPENROUTER_MODEL", &cfg.OpenRouter.Model)
	envString("PCE_OPENROUTER_MODEL", &cfg.OpenRouter.Model)
	envString("PCE_OPENROUTER_BASE_URL", &cfg.OpenRouter.BaseURL)
	envFloat("PCE_OPENROUTER_TIMEOUT_S", &cfg.OpenRouter.TimeoutS)
	envString("PCE_OPENROUTER_HTTP_REFERER", &cfg.OpenRouter.HTTPReferer)
	envString("PCE_OPENROUTER_X_TITLE", &cfg.OpenRouter.XTitle)
	envFloat("PCE_OPENROUTER_MAX_RPS", &cfg.OpenRouter.MaxRPS)

	envInt("PCE_CCI_WINDOW", &cfg.CCI.Window)

	envInt("PCE_APPROVALS_TTL_SECONDS", &cfg.Approvals.TTLSeconds)
	envInt("PCE_APPROVALS_SWEEP_INTERVAL_S", &cfg.Approvals.SweepIntervalS)

	envFloat("PCE_ASSISTANT_VALUE_FLOOR", &cfg.Assistant.ValueFloor)
	envFloat("PCE_ASSISTANT_CCI_FLOOR", &cfg.Assistant.CCIFloor)
	envFloat("PCE_ASSISTANT_EPSILON_START", &cfg.Assistant.EpsilonStart)
	envFloat("PCE_ASSISTANT_EPSILON_MIN", &cfg.Assistant.EpsilonMin)
	envFloat("PCE_ASSISTANT_EPSILON_DECAY", &cfg.Assistant.EpsilonDecay)

	envInt("PCE_ROVER_TICK_INTERVAL_MS", &cfg.Rover.TickIntervalMS)
	envInt("PCE_ROVER_FEEDBACK_EVERY", &cfg.Rover.FeedbackEvery)
	envInt("PCE_ROVER_WIDTH", &cfg.Rover.Width)
	envInt("PCE_ROVER_HEIGHT", &cfg.Rover.Height)
	envInt64("PCE_ROVER_SEED", &cfg.Rover.Seed)

	envFloat("PCE_TRADER_P_WIN_THRESHOLD", &cfg.Trader.PWinThreshold)
	envInt("PCE_TRADER_MAX_TRADES_PER_DAY", &cfg.Trader.MaxTradesPerDay)
	envInt("PCE_TRADER_MAX_TRADES_PER_ASSET_DAY", &cfg.Trader.MaxTradesPerAssetDay)

	envInt("PCE_QUEUE_WORKER_COUNT", &cfg.Queue.WorkerCount)
	envInt("PCE_QUEUE_SIZE", &cfg.Queue.QueueSize)

	envInt("PCE_RETENTION_EVENTS", &cfg.Retention.Events)
	envInt("PCE_RETENTION_ACTIONS", &cfg.Retention.Actions)
	envInt("PCE_RETENTION_CCI", &cfg.Retention.CCI)
	envInt("PCE_RETENTION_TRANSCRIPT", &cfg.Retention.Transcript)
	envInt("PCE_RETENTION_SWEEP_INTERVAL_S", &cfg.Retention.SweepIntervalS)

	envString("PCE_SLACK_TOKEN", &cfg.Slack.Token)
	envString("PCE_SLACK_CHANNEL", &cfg.Slack.Channel)
}

func envString(name string, target *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment override", "var", name, "value", v)
		return
	}
	*target = n
}

func envInt64(name string, target *int64) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("Ignoring non-integer environment override", "var", name, "value", v)
		return
	}
	*target = n
}

func envFloat(name string, target *float64) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment override", "var", name, "value", v)
		return
	}
	*target = f
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
