package rover

import (
	"log/slog"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/store"
)

// Rover bundles the robotics learning plugins behind one constructor. The
// runtime is built separately because it needs the engine the plugins are
// registered into.
type Rover struct {
	Storage    *Storage
	Values     ValueModel
	Integrator Integrator
	Decision   *Decision
	Executor   Executor
	Adaptation *Adaptation
}

// Option customizes the plugin bundle.
type Option func(*Rover)

// WithRand fixes the decision plugin's exploration randomness, for tests.
func WithRand(randFloat func() float64, randIndex func(n int) int) Option {
	return func(r *Rover) {
		r.Decision.randFloat = randFloat
		r.Decision.randIndex = randIndex
	}
}

// New builds the rover plugin bundle on top of the shared store.
func New(st *store.Manager, opts ...Option) *Rover {
	logger := slog.With("component", "rover")
	storage := NewStorage(st)
	r := &Rover{
		Storage: storage,
		Decision: &Decision{
			storage:   storage,
			logger:    logger,
			randFloat: defaultRandFloat,
			randIndex: defaultRandIndex,
		},
		Adaptation: &Adaptation{storage: storage, logger: logger},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register wires the rover plugins into the engine registry.
func (r *Rover) Register(reg *engine.Registry) {
	reg.RegisterValueModel(r.Values)
	reg.RegisterIntegrator(r.Integrator)
	reg.RegisterDecisionPlugin(r.Decision)
	reg.RegisterExecutor(r.Executor)
	reg.RegisterAdaptationPlugin(r.Adaptation)
}
