package rover

import (
	"context"

	"github.com/pce-project/pce/pkg/store"
)

// Namespace is the plugin KV namespace holding the rover policy.
const Namespace = "robotics"

const (
	paramsKey        = "params"
	qKeyPrefix       = "q:"
	pendingKeyPrefix = "pending:"
)

// Transition links a decided action to the feedback that should follow it.
type Transition struct {
	EpisodeID string `json:"episode_id"`
	StateKey  string `json:"state_key"`
	Action    string `json:"action"`
	Tick      int    `json:"tick"`
}

// Storage is the namespace-scoped persistence for the tabular policy:
// per-state Q-values, hyperparameters, and pending transitions keyed by
// episode.
type Storage struct {
	store *store.Manager
}

func NewStorage(st *store.Manager) *Storage {
	return &Storage{store: st}
}

// Params loads the hyperparameters, seeding and persisting the defaults on
// first use. Missing fields in a stored document fall back to defaults so
// older documents never produce a zeroed learning rate.
func (s *Storage) Params(ctx context.Context) (Params, error) {
	stored := struct {
		Alpha        *float64 `json:"alpha"`
		Gamma        *float64 `json:"gamma"`
		Epsilon      *float64 `json:"epsilon"`
		EpsilonDecay *float64 `json:"epsilon_decay"`
		EpsilonMin   *float64 `json:"epsilon_min"`
	}{}
	found, err := s.store.PluginGet(ctx, Namespace, paramsKey, &stored)
	if err != nil {
		return Params{}, err
	}
	if !found {
		params := DefaultParams()
		if err := s.store.PluginSet(ctx, Namespace, paramsKey, params); err != nil {
			return Params{}, err
		}
		return params, nil
	}

	params := DefaultParams()
	if stored.Alpha != nil {
		params.Alpha = *stored.Alpha
	}
	if stored.Gamma != nil {
		params.Gamma = *stored.Gamma
	}
	if stored.Epsilon != nil {
		params.Epsilon = *stored.Epsilon
	}
	if stored.EpsilonDecay != nil {
		params.EpsilonDecay = *stored.EpsilonDecay
	}
	if stored.EpsilonMin != nil {
		params.EpsilonMin = *stored.EpsilonMin
	}
	return params, nil
}

// SaveParams persists the full hyperparameter set.
func (s *Storage) SaveParams(ctx context.Context, params Params) error {
	return s.store.PluginSet(ctx, Namespace, paramsKey, params)
}

// SetEpsilon persists a new exploration rate, keeping the other
// hyperparameters.
func (s *Storage) SetEpsilon(ctx context.Context, epsilon float64) (Params, error) {
	params, err := s.Params(ctx)
	if err != nil {
		return Params{}, err
	}
	params.Epsilon = epsilon
	return params, s.SaveParams(ctx, params)
}

// Q loads the state-action values for one state key, normalized over the
// canonical action set.
func (s *Storage) Q(ctx context.Context, stateKey string) (map[string]float64, error) {
	stored := map[string]float64{}
	if _, err := s.store.PluginGet(ctx, Namespace, qKeyPrefix+stateKey, &stored); err != nil {
		return nil, err
	}
	normalized := make(map[string]float64, len(RobotActions))
	for _, action := range RobotActions {
		normalized[action] = stored[action]
	}
	return normalized, nil
}

// SaveQ persists all Q-values for a state key.
func (s *Storage) SaveQ(ctx context.Context, stateKey string, qValues map[string]float64) error {
	normalized := make(map[string]float64, len(RobotActions))
	for _, action := range RobotActions {
		normalized[action] = qValues[action]
	}
	return s.store.PluginSet(ctx, Namespace, qKeyPrefix+stateKey, normalized)
}

// SetQValue persists one state-action pair while retaining the others.
func (s *Storage) SetQValue(ctx context.Context, stateKey, action string, value float64) error {
	current, err := s.Q(ctx, stateKey)
	if err != nil {
		return err
	}
	current[action] = value
	return s.SaveQ(ctx, stateKey, current)
}

// SetPendingTransition records the transition awaiting feedback for an
// episode, replacing any previous one.
func (s *Storage) SetPendingTransition(ctx context.Context, episodeID string, transition *Transition) error {
	return s.store.PluginSet(ctx, Namespace, pendingKeyPrefix+episodeID, transition)
}

// PopPendingTransition removes and returns the episode's pending
// transition, or nil when none is waiting.
func (s *Storage) PopPendingTransition(ctx context.Context, episodeID string) (*Transition, error) {
	var transition Transition
	found, err := s.store.PluginGet(ctx, Namespace, pendingKeyPrefix+episodeID, &transition)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if err := s.store.PluginDelete(ctx, Namespace, pendingKeyPrefix+episodeID); err != nil {
		return nil, err
	}
	return &transition, nil
}

// ClearPolicy wipes every learned Q-value and pending transition and
// restores the default hyperparameters. Returns how many table entries
// were dropped.
func (s *Storage) ClearPolicy(ctx context.Context) (int64, Params, error) {
	deleted, err := s.store.PluginDeletePrefix(ctx, Namespace, qKeyPrefix)
	if err != nil {
		return 0, Params{}, err
	}
	if _, err := s.store.PluginDeletePrefix(ctx, Namespace, pendingKeyPrefix); err != nil {
		return deleted, Params{}, err
	}
	params := DefaultParams()
	if err := s.SaveParams(ctx, params); err != nil {
		return deleted, Params{}, err
	}
	return deleted, params, nil
}
