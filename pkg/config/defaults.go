package config

// DefaultConfig returns the built-in configuration. Every field is
// overridable by the config file and then by PCE_* environment variables.
func DefaultConfig() *Config {
	return &Config{
		APIPort:     8000,
		StateDBPath: "pce_state.db",
		OpenRouter: &OpenRouterConfig{
			Model:    "openai/gpt-4o-mini",
			BaseURL:  "https://openrouter.ai/api/v1/chat/completions",
			TimeoutS: 12,
			XTitle:   "pce-engine",
			MaxRPS:   4,
		},
		CCI: &CCIConfig{
			Window: 50,
			Weights: CCIWeights{
				Consistency:        0.35,
				Stability:          0.25,
				Contradiction:      0.25,
				PredictiveAccuracy: 0.15,
			},
		},
		Approvals: &ApprovalsConfig{
			TTLSeconds:     86400,
			SweepIntervalS: 60,
		},
		Assistant: &AssistantConfig{
			ValueFloor:   0.55,
			CCIFloor:     0.45,
			EpsilonStart: 0.6,
			EpsilonMin:   0.05,
			EpsilonDecay: 0.92,
		},
		Rover: &RoverConfig{
			TickIntervalMS: 200,
			FeedbackEvery:  5,
			Width:          80,
			Height:         60,
			Seed:           42,
		},
		Trader: &TraderConfig{
			PWinThreshold:        0.55,
			MaxUncertainty:       0.45,
			MaxTradesPerDay:      6,
			MaxTradesPerAssetDay: 2,
			DailyDrawdownLimit:   0.02,
			MonthlyDrawdownLimit: 0.06,
		},
		Queue: &QueueConfig{
			WorkerCount:      2,
			QueueSize:        64,
			ShutdownTimeoutS: 10,
		},
		Retention: &RetentionConfig{
			Events:         1000,
			Actions:        1000,
			CCI:            1000,
			Transcript:     500,
			SweepIntervalS: 300,
		},
		Slack: &SlackConfig{},
	}
}
