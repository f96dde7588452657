// Package trader implements the market-signal domain: candle ingest
// integrity, rolling feature generation, opportunity/risk/quality scoring,
// the deterministic macro/model/guardrail gate chain, a simulated broker,
// and the portfolio bookkeeping that feeds the guardrails.
package trader

import (
	"log/slog"
	"time"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/engine"
)

const (
	// executionTimeframe is the candle series decisions are made on.
	executionTimeframe = "1h"
	// macroTimeframe is the higher series feeding the macro regime gate.
	macroTimeframe = "4h"

	windowKeep    = 1200
	ingestKeyKeep = 256

	feeBps       = 8.0
	slippageBps  = 4.0
	riskPerTrade = 0.005
	startingCash = 100_000.0
)

// Trader bundles the market-signal plugins behind one constructor.
type Trader struct {
	Integrator Integrator
	Values     ValueModel
	Decision   *Decision
	Executor   Executor
	Adaptation *Adaptation
	Applier    Applier
}

// Option customizes the plugin bundle.
type Option func(*Trader)

// WithClock fixes the decision plugin's clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Trader) {
		t.Decision.clock = clock
	}
}

// New builds the trader plugin bundle from the gate configuration. A nil
// config falls back to the default thresholds and guardrails.
func New(cfg *config.TraderConfig, opts ...Option) *Trader {
	if cfg == nil {
		cfg = &config.TraderConfig{
			PWinThreshold:        0.55,
			MaxUncertainty:       0.45,
			MaxTradesPerDay:      6,
			MaxTradesPerAssetDay: 2,
			DailyDrawdownLimit:   0.02,
			MonthlyDrawdownLimit: 0.06,
		}
	}
	logger := slog.With("component", "trader")
	t := &Trader{
		Integrator: Integrator{},
		Values:     ValueModel{},
		Decision: &Decision{
			cfg:    cfg,
			logger: logger,
			clock:  time.Now,
			newID:  newDecisionSuffix,
		},
		Executor:   Executor{},
		Adaptation: &Adaptation{logger: logger},
		Applier:    Applier{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register wires the trader plugins into the engine registry.
func (t *Trader) Register(reg *engine.Registry) {
	reg.RegisterIntegrator(t.Integrator)
	reg.RegisterValueModel(t.Values)
	reg.RegisterDecisionPlugin(t.Decision)
	reg.RegisterExecutor(t.Executor)
	reg.RegisterAdaptationPlugin(t.Adaptation)
	reg.RegisterStateApplier(t.Applier)
}
