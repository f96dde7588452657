// Package assistant implements the LLM assistant domain: an epsilon-greedy
// decoding policy, bounded session memory, the OpenRouter-backed decision
// plugin, and feedback-driven adaptation.
package assistant

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/llm"
)

// Profiles are the discrete decoding profiles the bandit chooses between.
var Profiles = map[string]llm.Decoding{
	"P0": {Temperature: 0.2, TopP: 0.8, PresencePenalty: 0.0},
	"P1": {Temperature: 0.7, TopP: 0.9, PresencePenalty: 0.1},
	"P2": {Temperature: 0.9, TopP: 0.95, PresencePenalty: 0.2},
	"P3": {Temperature: 0.4, TopP: 0.9, PresencePenalty: 0.0},
}

// DefaultProfileID seeds selected_profile before any feedback arrives.
const DefaultProfileID = "P3"

// safeProfileID is the conservative profile the override falls back to.
const safeProfileID = "P0"

const (
	defaultValueFloor   = 0.55
	defaultCCIFloor     = 0.45
	defaultEpsilonStart = 0.6
	defaultEpsilonMin   = 0.05
	defaultEpsilonDecay = 0.92
)

// Override reasons surfaced in explain.de.override_reason.
const (
	OverrideValueFloor = "value_floor"
	OverrideCCIFloor   = "cci_floor"

	noOverrideHighConfidence = "no_override_high_confidence"
)

// ProfileIDs returns the profile identifiers in stable sorted order.
func ProfileIDs() []string {
	ids := make([]string, 0, len(Profiles))
	for id := range Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProfileStats tracks bandit statistics for one profile.
type ProfileStats struct {
	Count     int     `json:"count"`
	AvgReward float64 `json:"avg_reward"`
}

// PolicyState is the persisted epsilon-greedy selection state.
type PolicyState struct {
	Epsilon         float64                 `json:"epsilon"`
	FeedbackCount   int                     `json:"feedback_count"`
	SelectedProfile string                  `json:"selected_profile"`
	Profiles        map[string]ProfileStats `json:"profiles"`
}

// Choice is one profile selection.
type Choice struct {
	ProfileID string
	Mode      string
	Epsilon   float64
	Decoding  llm.Decoding
}

// Policy implements epsilon-greedy profile selection with a deterministic
// safety override when strategic confidence is low.
type Policy struct {
	valueFloor   float64
	cciFloor     float64
	epsilonStart float64
	epsilonMin   float64
	epsilonDecay float64

	randFloat func() float64
	randIndex func(n int) int
}

// PolicyOption customizes policy construction.
type PolicyOption func(*Policy)

// WithRand overrides the random sources, for deterministic tests.
func WithRand(randFloat func() float64, randIndex func(n int) int) PolicyOption {
	return func(p *Policy) {
		p.randFloat = randFloat
		p.randIndex = randIndex
	}
}

// NewPolicy builds a policy from config, filling unset fields with defaults.
func NewPolicy(cfg *config.AssistantConfig, opts ...PolicyOption) *Policy {
	p := &Policy{
		valueFloor:   defaultValueFloor,
		cciFloor:     defaultCCIFloor,
		epsilonStart: defaultEpsilonStart,
		epsilonMin:   defaultEpsilonMin,
		epsilonDecay: defaultEpsilonDecay,
		randFloat:    rand.Float64,
		randIndex:    rand.IntN,
	}
	if cfg != nil {
		if cfg.ValueFloor > 0 {
			p.valueFloor = cfg.ValueFloor
		}
		if cfg.CCIFloor > 0 {
			p.cciFloor = cfg.CCIFloor
		}
		if cfg.EpsilonStart > 0 {
			p.epsilonStart = cfg.EpsilonStart
		}
		if cfg.EpsilonMin > 0 {
			p.epsilonMin = cfg.EpsilonMin
		}
		if cfg.EpsilonDecay > 0 {
			p.epsilonDecay = cfg.EpsilonDecay
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultState builds the baseline policy state.
func (p *Policy) DefaultState() *PolicyState {
	profiles := make(map[string]ProfileStats, len(Profiles))
	for _, id := range ProfileIDs() {
		profiles[id] = ProfileStats{}
	}
	return &PolicyState{
		Epsilon:         p.epsilonStart,
		SelectedProfile: DefaultProfileID,
		Profiles:        profiles,
	}
}

// Choose selects one profile: explore with probability epsilon, otherwise
// exploit the best average reward (ties break to the lowest profile id).
func (p *Policy) Choose(ps *PolicyState) Choice {
	ids := ProfileIDs()
	var profileID, mode string
	if p.randFloat() < ps.Epsilon {
		profileID = ids[p.randIndex(len(ids))]
		mode = "explore"
	} else {
		profileID = ids[0]
		best := ps.Profiles[ids[0]].AvgReward
		for _, id := range ids[1:] {
			if avg := ps.Profiles[id].AvgReward; avg > best {
				best = avg
				profileID = id
			}
		}
		mode = "exploit"
	}
	return Choice{
		ProfileID: profileID,
		Mode:      mode,
		Epsilon:   ps.Epsilon,
		Decoding:  Profiles[profileID],
	}
}

// Override replaces the bandit choice with the clamped conservative profile
// when the value score or coherence sits below its floor. The returned
// reason is "" when the bandit choice stands without note.
func (p *Policy) Override(bandit Choice, valueScore, cci float64) (Choice, string) {
	safe := func() Choice {
		base := Profiles[safeProfileID]
		return Choice{
			ProfileID: safeProfileID,
			Mode:      "override_safe",
			Epsilon:   bandit.Epsilon,
			Decoding: llm.Decoding{
				Temperature:     math.Min(0.3, base.Temperature),
				TopP:            math.Min(0.85, base.TopP),
				PresencePenalty: 0,
			},
		}
	}
	if valueScore < p.valueFloor {
		return safe(), OverrideValueFloor
	}
	if cci < p.cciFloor {
		return safe(), OverrideCCIFloor
	}
	if valueScore > 0.75 && cci > 0.65 {
		return bandit, noOverrideHighConfidence
	}
	return bandit, ""
}

// Update folds one reward into the profile stats and decays epsilon.
func (p *Policy) Update(ps *PolicyState, profileID string, reward float64) *PolicyState {
	profiles := make(map[string]ProfileStats, len(ps.Profiles)+1)
	for id, stats := range ps.Profiles {
		profiles[id] = stats
	}
	stats := profiles[profileID]
	stats.Count++
	stats.AvgReward += (reward - stats.AvgReward) / float64(stats.Count)
	profiles[profileID] = stats

	return &PolicyState{
		Epsilon:         math.Max(p.epsilonMin, ps.Epsilon*p.epsilonDecay),
		FeedbackCount:   ps.FeedbackCount + 1,
		SelectedProfile: profileID,
		Profiles:        profiles,
	}
}

// RewardFromPayload normalizes the accepted feedback contracts into [-1, 1]:
// an explicit reward wins, then a 1..5 rating mapped to (r-3)/2, then an
// accepted boolean mapped to ±1.
func RewardFromPayload(payload map[string]any) float64 {
	if v, ok := asNumber(payload["reward"]); ok {
		return clampReward(v)
	}
	if v, ok := asNumber(payload["rating"]); ok {
		return clampReward((v - 3.0) / 2.0)
	}
	if accepted, ok := payload["accepted"].(bool); ok {
		if accepted {
			return 1
		}
		return -1
	}
	return 0
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clampReward(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
