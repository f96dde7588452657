package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return err
	}
	if err := v.validateOpenRouter(); err != nil {
		return err
	}
	if err := v.validateCCI(); err != nil {
		return err
	}
	if err := v.validateApprovals(); err != nil {
		return err
	}
	if err := v.validateAssistant(); err != nil {
		return err
	}
	if err := v.validateRover(); err != nil {
		return err
	}
	if err := v.validateTrader(); err != nil {
		return err
	}
	if err := v.validateQueue(); err != nil {
		return err
	}
	return v.validateRetention()
}

func (v *ConfigValidator) validateServer() error {
	if v.cfg.APIPort < 1 || v.cfg.APIPort > 65535 {
		return NewValidationError("server", "api_port", fmt.Errorf("%w: %d", ErrInvalidValue, v.cfg.APIPort))
	}
	if v.cfg.StateDBPath == "" {
		return NewValidationError("server", "state_db_path", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateOpenRouter() error {
	or := v.cfg.OpenRouter
	if or.BaseURL == "" {
		return NewValidationError("openrouter", "base_url", ErrMissingRequiredField)
	}
	if or.TimeoutS <= 0 {
		return NewValidationError("openrouter", "timeout_s", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if or.MaxRPS <= 0 {
		return NewValidationError("openrouter", "max_rps", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateCCI() error {
	c := v.cfg.CCI
	if c.Window < 1 {
		return NewValidationError("cci", "window", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	w := c.Weights
	for field, value := range map[string]float64{
		"consistency":         w.Consistency,
		"stability":           w.Stability,
		"contradiction":       w.Contradiction,
		"predictive_accuracy": w.PredictiveAccuracy,
	} {
		if value < 0 {
			return NewValidationError("cci", "weights."+field, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}
	if w.Consistency+w.Stability+w.Contradiction+w.PredictiveAccuracy <= 0 {
		return NewValidationError("cci", "weights", fmt.Errorf("%w: weights must not all be zero", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateApprovals() error {
	a := v.cfg.Approvals
	if a.TTLSeconds < 1 {
		return NewValidationError("approvals", "ttl_seconds", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if a.SweepIntervalS < 1 {
		return NewValidationError("approvals", "sweep_interval_s", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateAssistant() error {
	a := v.cfg.Assistant
	for field, value := range map[string]float64{
		"value_floor": a.ValueFloor,
		"cci_floor":   a.CCIFloor,
	} {
		if value < 0 || value > 1 {
			return NewValidationError("assistant", field, fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
		}
	}
	if a.EpsilonStart < 0 || a.EpsilonStart > 1 {
		return NewValidationError("assistant", "epsilon_start", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if a.EpsilonMin < 0 || a.EpsilonMin > a.EpsilonStart {
		return NewValidationError("assistant", "epsilon_min", fmt.Errorf("%w: must be in [0,epsilon_start]", ErrInvalidValue))
	}
	if a.EpsilonDecay <= 0 || a.EpsilonDecay > 1 {
		return NewValidationError("assistant", "epsilon_decay", fmt.Errorf("%w: must be in (0,1]", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRover() error {
	r := v.cfg.Rover
	if r.Width < 8 || r.Height < 8 {
		return NewValidationError("rover", "width/height", fmt.Errorf("%w: grid must be at least 8x8", ErrInvalidValue))
	}
	if r.TickIntervalMS < 1 {
		return NewValidationError("rover", "tick_interval_ms", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.FeedbackEvery < 1 {
		return NewValidationError("rover", "feedback_every", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateTrader() error {
	t := v.cfg.Trader
	if t.PWinThreshold < 0 || t.PWinThreshold > 1 {
		return NewValidationError("trader", "p_win_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if t.MaxUncertainty < 0 || t.MaxUncertainty > 1 {
		return NewValidationError("trader", "max_uncertainty", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if t.MaxTradesPerDay < 0 || t.MaxTradesPerAssetDay < 0 {
		return NewValidationError("trader", "max_trades", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.QueueSize < 1 {
		return NewValidationError("queue", "queue_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	for field, value := range map[string]int{
		"events":     r.Events,
		"actions":    r.Actions,
		"cci":        r.CCI,
		"transcript": r.Transcript,
	} {
		if value < 0 {
			return NewValidationError("retention", field, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}
	if r.SweepIntervalS < 1 {
		return NewValidationError("retention", "sweep_interval_s", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}
