package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStateKey(t *testing.T) {
	tests := []struct {
		name        string
		observation map[string]any
		want        string
	}{
		{
			name: "full observation",
			observation: map[string]any{
				"x": 10.0, "y": 5.0, "direction": 2.0,
				"goal_x": 7.0, "goal_y": 9.0,
				"sensors": map[string]any{"front": 4.0, "left": 1.0, "right": 0.0},
			},
			want: "d2_dx-1_dy1_f3_l1_r0",
		},
		{
			name: "direction wraps modulo four",
			observation: map[string]any{
				"x": 0, "y": 0, "direction": 5,
				"goal_x": 0, "goal_y": 0,
				"sensors": map[string]any{"front": 10, "left": 2, "right": 3},
			},
			want: "d1_dx0_dy0_f3_l2_r2",
		},
		{
			name: "negative direction normalizes",
			observation: map[string]any{
				"x": 1, "y": 1, "direction": -1,
				"goal_x": 2, "goal_y": 0,
				"sensors": map[string]any{"front": 1, "left": 0, "right": 0},
			},
			want: "d3_dx1_dy-1_f1_l0_r0",
		},
		{
			name:        "empty observation",
			observation: map[string]any{},
			want:        "d0_dx0_dy0_f0_l0_r0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildStateKey(tc.observation))
		})
	}
}

func TestBucketSensor(t *testing.T) {
	tests := []struct {
		raw  int
		want int
	}{
		{-1, 0}, {0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {10, 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, bucketSensor(tc.raw), "raw=%d", tc.raw)
	}
}

func TestChooseActionExploit(t *testing.T) {
	neverExplore := func() float64 { return 0.99 }
	q := map[string]float64{"FWD": 0.1, "L": 0.6, "R": 0.6, "S": -0.2}

	action, mode := chooseAction(q, 0.5, neverExplore, func(int) int { return 0 })
	assert.Equal(t, "exploit", mode)
	assert.Equal(t, "L", action, "ties break toward canonical order")

	action, _ = chooseAction(map[string]float64{}, 0.0, neverExplore, func(int) int { return 0 })
	assert.Equal(t, "FWD", action, "all-zero table falls back to the first action")
}

func TestChooseActionExplore(t *testing.T) {
	alwaysExplore := func() float64 { return 0.0 }
	pick := func(n int) int {
		assert.Equal(t, len(RobotActions), n)
		return 2
	}

	action, mode := chooseAction(map[string]float64{"L": 5.0}, 0.3, alwaysExplore, pick)
	assert.Equal(t, "explore", mode)
	assert.Equal(t, "R", action)
}

func TestActionCommand(t *testing.T) {
	tests := []struct {
		action string
		want   map[string]any
	}{
		{"FWD", map[string]any{"type": "robot.move_forward", "amount": 1}},
		{"L", map[string]any{"type": "robot.turn_left"}},
		{"R", map[string]any{"type": "robot.turn_right"}},
		{"S", map[string]any{"type": "robot.stop"}},
		{"bogus", map[string]any{"type": "robot.stop"}},
	}
	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			assert.Equal(t, tc.want, ActionCommand(tc.action))
		})
	}
}

func TestQLearningUpdate(t *testing.T) {
	// 0 + 0.2*(1 + 0.95*0.5 - 0) = 0.295
	assert.InDelta(t, 0.295, qLearningUpdate(0.0, 1.0, 0.5, 0.2, 0.95), 1e-9)
	// 1 + 0.2*(-0.1 + 0 - 1) = 0.78
	assert.InDelta(t, 0.78, qLearningUpdate(1.0, -0.1, 0.0, 0.2, 0.95), 1e-9)
	// Terminal target with zero bootstrap moves straight toward the reward.
	assert.InDelta(t, 20.0, qLearningUpdate(0.0, 100.0, 0.0, 0.2, 0.95), 1e-9)
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 0.2, p.Alpha, 1e-9)
	assert.InDelta(t, 0.95, p.Gamma, 1e-9)
	assert.InDelta(t, 1.0, p.Epsilon, 1e-9)
	assert.InDelta(t, 0.9995, p.EpsilonDecay, 1e-9)
	assert.InDelta(t, 0.05, p.EpsilonMin, 1e-9)
}
