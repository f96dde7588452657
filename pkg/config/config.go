package config

import "time"

// Config is the umbrella configuration object for the engine, its persistence
// layer, and the agent surfaces. This is the primary object returned by
// Initialize() and used throughout the application.
//
// Precedence per field: environment variable > config file > built-in default.
type Config struct {
	configPath string // Config file path actually loaded (for reference)

	// APIPort is the HTTP listen port.
	APIPort int `yaml:"api_port"`

	// StateDBPath is the SQLite database file backing all persistence.
	StateDBPath string `yaml:"state_db_path"`

	OpenRouter *OpenRouterConfig `yaml:"openrouter"`
	CCI        *CCIConfig        `yaml:"cci"`
	Approvals  *ApprovalsConfig  `yaml:"approvals"`
	Assistant  *AssistantConfig  `yaml:"assistant"`
	Rover      *RoverConfig      `yaml:"rover"`
	Trader     *TraderConfig     `yaml:"trader"`
	Queue      *QueueConfig      `yaml:"queue"`
	Retention  *RetentionConfig  `yaml:"retention"`
	Slack      *SlackConfig      `yaml:"slack"`
}

// ConfigPath returns the config file path that was loaded ("" when none).
func (c *Config) ConfigPath() string {
	return c.configPath
}

// OpenRouterConfig holds the LLM provider settings for the assistant plugins.
type OpenRouterConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	TimeoutS    float64 `yaml:"timeout_s"`
	HTTPReferer string  `yaml:"http_referer"`
	XTitle      string  `yaml:"x_title"`

	// MaxRPS caps outbound request rate to the provider.
	MaxRPS float64 `yaml:"max_rps"`
}

// Timeout returns the per-request time box as a duration.
func (c *OpenRouterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS * float64(time.Second))
}

// Configured reports whether the provider can actually be called.
func (c *OpenRouterConfig) Configured() bool {
	return c.APIKey != "" && c.Model != ""
}

// CCIConfig controls the coherence index computation.
type CCIConfig struct {
	// Window is how many recent completed actions the index is computed over.
	Window int `yaml:"window"`

	Weights CCIWeights `yaml:"weights"`
}

// CCIWeights are the component weights of the aggregate CCI score.
// They are read at boot and fixed for the process lifetime.
type CCIWeights struct {
	Consistency        float64 `yaml:"consistency"`
	Stability          float64 `yaml:"stability"`
	Contradiction      float64 `yaml:"contradiction"`
	PredictiveAccuracy float64 `yaml:"predictive_accuracy"`
}

// ApprovalsConfig controls the human approval gate.
type ApprovalsConfig struct {
	// TTLSeconds is how long a pending approval lives before expiring.
	TTLSeconds int `yaml:"ttl_seconds"`

	// SweepIntervalS is how often the expiry sweeper runs.
	SweepIntervalS int `yaml:"sweep_interval_s"`
}

// TTL returns the pending-approval lifetime as a duration.
func (c *ApprovalsConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns the sweeper period as a duration.
func (c *ApprovalsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// AssistantConfig tunes the assistant bandit and its deterministic overrides.
type AssistantConfig struct {
	// ValueFloor forces the conservative profile when an event scores below it.
	ValueFloor float64 `yaml:"value_floor"`

	// CCIFloor forces the conservative profile when coherence drops below it.
	CCIFloor float64 `yaml:"cci_floor"`

	EpsilonStart float64 `yaml:"epsilon_start"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
}

// RoverConfig controls the grid-world simulation runtime.
type RoverConfig struct {
	TickIntervalMS int `yaml:"tick_interval_ms"`

	// FeedbackEvery is how many ticks pass between reward feedback events.
	FeedbackEvery int   `yaml:"feedback_every"`
	Width         int   `yaml:"width"`
	Height        int   `yaml:"height"`
	Seed          int64 `yaml:"seed"`
}

// TickInterval returns the simulation step period as a duration.
func (c *RoverConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// TraderConfig holds the market-signal gate thresholds and guardrails.
type TraderConfig struct {
	PWinThreshold        float64 `yaml:"p_win_threshold"`
	MaxUncertainty       float64 `yaml:"max_uncertainty"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxTradesPerAssetDay int     `yaml:"max_trades_per_asset_day"`
	DailyDrawdownLimit   float64 `yaml:"daily_drawdown_limit"`
	MonthlyDrawdownLimit float64 `yaml:"monthly_drawdown_limit"`
}

// QueueConfig contains the deferred-work pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines.
	WorkerCount int `yaml:"worker_count"`

	// QueueSize bounds how many jobs may wait for a worker.
	QueueSize int `yaml:"queue_size"`

	// ShutdownTimeoutS is the max time to wait for in-flight jobs on shutdown.
	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"`
}

// ShutdownTimeout returns the drain deadline as a duration.
func (c *QueueConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// RetentionConfig controls how many rows each append-only table keeps.
// A value of 0 disables trimming for that table.
type RetentionConfig struct {
	Events         int `yaml:"events"`
	Actions        int `yaml:"actions"`
	CCI            int `yaml:"cci"`
	Transcript     int `yaml:"transcript"`
	SweepIntervalS int `yaml:"sweep_interval_s"`
}

// SweepInterval returns the trim period as a duration.
func (c *RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// SlackConfig holds approval notification settings.
// Notifications are disabled unless both token and channel are set.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether notifications can be sent.
func (c *SlackConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}
