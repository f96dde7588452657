package rover

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/models"
)

func TestRoverValueMatchesDomain(t *testing.T) {
	vm := ValueModel{}
	assert.True(t, vm.Matches(map[string]any{}, roverEvent("robot_telemetry", nil)))
	assert.False(t, vm.Matches(map[string]any{}, &models.Event{
		EventType: "robot_telemetry",
		Payload:   map[string]any{"domain": "trading"},
	}))
}

func TestRoverValueEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   map[string]any
		want      float64
	}{
		{
			name:      "clear path toward goal",
			eventType: "robot_telemetry",
			payload: map[string]any{
				"observation": telemetryObservation(5, 5, 0, 5, 9, 10),
			},
			want: 0.9285,
		},
		{
			name:      "blocked front zeroes safety",
			eventType: "robot_telemetry",
			payload: map[string]any{
				"observation": telemetryObservation(4, 5, 0, 5, 6, 0),
			},
			want: 0.4635,
		},
		{
			name:      "distant goal clamps progress",
			eventType: "robot_telemetry",
			payload: map[string]any{
				"observation": telemetryObservation(0, 0, 0, 15, 15, 10),
			},
			want: 0.6485,
		},
		{
			name:      "collision feedback",
			eventType: "feedback.robotics.v1",
			payload:   map[string]any{"distance": 10.0, "reward": -5.1},
			want:      0.175,
		},
		{
			name:      "goal feedback",
			eventType: "feedback.robotics.v1",
			payload:   map[string]any{"distance": 0.0, "reward": 99.9, "done": true},
			want:      0.5,
		},
	}

	vm := ValueModel{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, dims, err := vm.Evaluate(context.Background(), map[string]any{}, roverEvent(tc.eventType, tc.payload))
			require.NoError(t, err)
			assert.Nil(t, dims)
			assert.InDelta(t, tc.want, score, 1e-9)
		})
	}
}
