package assistant

import (
	"context"
	"log/slog"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/masking"
	"github.com/pce-project/pce/pkg/store"
)

// Assistant bundles the domain plugins behind one constructor so wiring
// stays in one place.
type Assistant struct {
	Storage    *Storage
	Policy     *Policy
	Values     ValueModel
	Decision   *Decision
	Adaptation *Adaptation
}

// Option customizes assistant construction.
type Option func(*Assistant)

// WithMasker overrides the diagnostics masker.
func WithMasker(m *masking.Service) Option {
	return func(a *Assistant) {
		a.Decision.masker = m
	}
}

// New builds the assistant domain from its dependencies. client is the
// OpenRouter client (or a stub in tests); cfg may be nil for defaults.
func New(st *store.Manager, client Replier, cfg *config.AssistantConfig, opts ...Option) *Assistant {
	policy := NewPolicy(cfg)
	storage := NewStorage(st, policy)
	logger := slog.With("component", "assistant")

	a := &Assistant{
		Storage: storage,
		Policy:  policy,
		Values:  ValueModel{},
		Decision: &Decision{
			storage: storage,
			policy:  policy,
			values:  ValueModel{},
			client:  client,
			masker:  masking.NewService(),
			logger:  logger,
		},
		Adaptation: &Adaptation{
			storage: storage,
			policy:  policy,
			logger:  logger,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register wires the assistant plugins into the engine registry.
func (a *Assistant) Register(reg *engine.Registry) {
	reg.RegisterValueModel(a.Values)
	reg.RegisterDecisionPlugin(a.Decision)
	reg.RegisterAdaptationPlugin(a.Adaptation)
}

// ClearMemory wipes the assistant namespace, resetting the bandit policy
// and metrics to defaults. Returns how many keys were deleted.
func (a *Assistant) ClearMemory(ctx context.Context) (int64, error) {
	return a.Storage.ClearAll(ctx)
}
