package assistant

import (
	"context"
	"strings"

	"github.com/pce-project/pce/pkg/models"
)

// dangerousTokens force the safety component down when present in user text.
var dangerousTokens = []string{"hack", "exploit", "malware"}

// ValueModel scores assistant events against tactical values.
type ValueModel struct{}

func (ValueModel) Name() string { return "assistant_values" }

func (ValueModel) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "assistant"
}

// Evaluate weighs safety, efficiency, coherence and helpfulness into one
// score in [0,1].
func (m ValueModel) Evaluate(ctx context.Context, state map[string]any, ev *models.Event) (float64, []string, error) {
	c := m.Components(state, ev)
	score := 0.35*c["safety"] + 0.20*c["efficiency"] + 0.20*c["long_term_coherence"] + 0.25*c["helpfulness"]
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil, nil
}

// Components exposes the score breakdown for explain payloads.
func (ValueModel) Components(state map[string]any, ev *models.Event) map[string]float64 {
	text := ev.PayloadString("text")
	length := len([]rune(text))
	lower := strings.ToLower(text)

	safety := 1.0
	for _, token := range dangerousTokens {
		if strings.Contains(lower, token) {
			safety = 0.2
			break
		}
	}

	efficiency := 1.0
	switch {
	case length <= 600:
		efficiency = 1.0
	case length <= 1400:
		efficiency = 0.7
	default:
		efficiency = 0.4
	}

	helpfulness := 0.4
	if length >= 8 {
		helpfulness = 0.8
	}

	coherence := 0.8
	if values, ok := state["strategic_values"].(map[string]any); ok {
		if v, ok := asNumber(values["long_term_coherence"]); ok {
			coherence = v
		}
	}
	if coherence < 0 {
		coherence = 0
	}
	if coherence > 1 {
		coherence = 1
	}

	return map[string]float64{
		"safety":              safety,
		"efficiency":          efficiency,
		"long_term_coherence": coherence,
		"helpfulness":         helpfulness,
	}
}
