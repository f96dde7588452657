package engine

import (
	"sync"

	"github.com/pce-project/pce/pkg/models"
)

// Registry holds the domain plugins for each pipeline capability.
// Selection is first registered match wins; registration order is the
// priority order. A nil selection means the core behavior applies.
type Registry struct {
	mu          sync.RWMutex
	values      []ValueModel
	integrators []Integrator
	decisions   []DecisionPlugin
	executors   []Executor
	adaptations []AdaptationPlugin
	appliers    []StateApplier
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) RegisterValueModel(vm ValueModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, vm)
}

func (r *Registry) RegisterIntegrator(in Integrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrators = append(r.integrators, in)
}

func (r *Registry) RegisterDecisionPlugin(dp DecisionPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, dp)
}

func (r *Registry) RegisterExecutor(ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors = append(r.executors, ex)
}

func (r *Registry) RegisterAdaptationPlugin(ap AdaptationPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptations = append(r.adaptations, ap)
}

func (r *Registry) RegisterStateApplier(sa StateApplier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appliers = append(r.appliers, sa)
}

// ValueModelFor returns the first value model matching the event, or nil.
func (r *Registry) ValueModelFor(state map[string]any, ev *models.Event) ValueModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, vm := range r.values {
		if vm.Matches(state, ev) {
			return vm
		}
	}
	return nil
}

// IntegratorFor returns the first integrator matching the event, or nil.
func (r *Registry) IntegratorFor(state map[string]any, ev *models.Event) Integrator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, in := range r.integrators {
		if in.Matches(state, ev) {
			return in
		}
	}
	return nil
}

// DecisionPluginFor returns the first decision plugin matching the event, or nil.
func (r *Registry) DecisionPluginFor(state map[string]any, ev *models.Event) DecisionPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dp := range r.decisions {
		if dp.Matches(state, ev) {
			return dp
		}
	}
	return nil
}

// ExecutorFor returns the first executor matching the plan, or nil.
func (r *Registry) ExecutorFor(state map[string]any, plan *models.ActionPlan) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ex := range r.executors {
		if ex.Matches(state, plan) {
			return ex
		}
	}
	return nil
}

// AdaptationPluginFor returns the first adaptation plugin matching the event, or nil.
func (r *Registry) AdaptationPluginFor(state map[string]any, ev *models.Event) AdaptationPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ap := range r.adaptations {
		if ap.Matches(state, ev) {
			return ap
		}
	}
	return nil
}

// StateAppliersFor returns every state applier matching the event in
// registration order. Appliers are cumulative, not first match.
func (r *Registry) StateAppliersFor(state map[string]any, ev *models.Event) []StateApplier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []StateApplier
	for _, sa := range r.appliers {
		if sa.Matches(state, ev) {
			out = append(out, sa)
		}
	}
	return out
}
