package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyWorld builds a small deterministic arena with no obstacles for
// movement tests.
func emptyWorld(width, height int) *GridWorld {
	w := &GridWorld{
		Width:          width,
		Height:         height,
		Seed:           1,
		MaxSteps:       defaultMaxSteps,
		CollisionLimit: defaultCollisionLimit,
		EpisodeID:      "ep-test",
		Obstacles:      map[Coord]bool{},
		Robot:          RobotPose{X: 2, Y: 2, Direction: 0, Energy: 100},
		Goal:           Coord{4, 4},
		Start:          Coord{2, 2},
	}
	return w
}

func TestNewGridWorldDeterministic(t *testing.T) {
	a := NewGridWorld(80, 60, 42)
	b := NewGridWorld(80, 60, 42)

	assert.Len(t, a.Obstacles, int(80*60*obstacleDensity))
	assert.Equal(t, a.Obstacles, b.Obstacles)
	assert.Equal(t, a.Start, b.Start)
	assert.Equal(t, a.Goal, b.Goal)
	assert.NotEqual(t, a.EpisodeID, b.EpisodeID, "episode ids are unique per world")

	assert.False(t, a.Obstacles[a.Start], "start never spawns on an obstacle")
	assert.False(t, a.Obstacles[a.Goal], "goal never spawns on an obstacle")
	assert.NotEqual(t, a.Start, a.Goal)
}

func TestResetKeepsLayoutChangesEpisode(t *testing.T) {
	w := NewGridWorld(40, 30, 7)
	firstEpisode := w.EpisodeID
	firstStart := w.Start

	w.Metrics.Tick = 55
	w.Reset()

	assert.NotEqual(t, firstEpisode, w.EpisodeID)
	assert.Equal(t, firstStart, w.Start, "same seed re-rolls the same layout")
	assert.Equal(t, 0, w.Metrics.Tick)
}

func TestApplyActionTurnsAndMoves(t *testing.T) {
	w := emptyWorld(5, 5)

	w.ApplyAction(map[string]any{"type": "robot.turn_left"})
	assert.Equal(t, 3, w.Robot.Direction)
	assert.Equal(t, 1, w.Metrics.Tick)

	w.ApplyAction(map[string]any{"type": "robot.turn_right"})
	assert.Equal(t, 0, w.Robot.Direction)

	// Facing up from (2,2) moves to (2,1), away from the goal at (4,4).
	w.ApplyAction(map[string]any{"type": "robot.move_forward", "amount": 1})
	assert.Equal(t, Coord{2, 1}, Coord{w.Robot.X, w.Robot.Y})
	assert.InDelta(t, -1.1, w.LastReward, 1e-9, "step cost plus distance regression")
}

func TestApplyActionProgressReward(t *testing.T) {
	w := emptyWorld(5, 5)
	w.Robot.Direction = 1

	// Facing right from (2,2) moves toward the goal at (4,4).
	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	assert.Equal(t, Coord{3, 2}, Coord{w.Robot.X, w.Robot.Y})
	assert.InDelta(t, 0.9, w.LastReward, 1e-9)
}

func TestApplyActionCollision(t *testing.T) {
	w := emptyWorld(5, 5)
	w.Robot = RobotPose{X: 0, Y: 0, Direction: 0, Energy: 100}

	// Facing up at the top wall.
	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	assert.Equal(t, Coord{0, 0}, Coord{w.Robot.X, w.Robot.Y})
	assert.Equal(t, 1, w.Metrics.Collisions)
	assert.InDelta(t, -5.1, w.LastReward, 1e-9)

	w.Obstacles[Coord{1, 0}] = true
	w.Robot.Direction = 1
	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	assert.Equal(t, 2, w.Metrics.Collisions)
}

func TestApplyActionGoalFinishesEpisode(t *testing.T) {
	w := emptyWorld(5, 5)
	w.Robot = RobotPose{X: 3, Y: 4, Direction: 1, Energy: 100}

	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	assert.True(t, w.Metrics.Done)
	assert.Equal(t, "goal", w.Metrics.Reason)
	assert.InDelta(t, 99.9, w.LastReward, 1e-9)

	// Finished episodes ignore further commands.
	w.ApplyAction(map[string]any{"type": "robot.turn_left"})
	assert.Equal(t, 1, w.Metrics.Tick)
	assert.Equal(t, 1, w.Robot.Direction)
}

func TestEpisodeEndsOnCollisionLimit(t *testing.T) {
	w := emptyWorld(5, 5)
	w.CollisionLimit = 2
	w.Robot = RobotPose{X: 0, Y: 0, Direction: 0, Energy: 100}

	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	require.False(t, w.Metrics.Done)
	w.ApplyAction(map[string]any{"type": "robot.move_forward"})
	assert.True(t, w.Metrics.Done)
	assert.Equal(t, "collision", w.Metrics.Reason)
}

func TestEpisodeEndsOnTimeout(t *testing.T) {
	w := emptyWorld(5, 5)
	w.MaxSteps = 3

	for i := 0; i < 3; i++ {
		w.ApplyAction(map[string]any{"type": "robot.stop"})
	}
	assert.True(t, w.Metrics.Done)
	assert.Equal(t, "timeout", w.Metrics.Reason)
}

func TestSensors(t *testing.T) {
	w := emptyWorld(20, 20)
	w.Robot = RobotPose{X: 10, Y: 10, Direction: 0, Energy: 100}
	w.Obstacles[Coord{10, 7}] = true  // two free tiles ahead
	w.Obstacles[Coord{9, 10}] = true  // immediately left
	w.Obstacles[Coord{14, 10}] = true // three free tiles right

	sensors := w.Sensors()
	assert.Equal(t, 2, sensors.Front)
	assert.Equal(t, 0, sensors.Left)
	assert.Equal(t, 3, sensors.Right)
	assert.Equal(t, sensors.Left, sensors.FrontLeft, "side beams are shared")
	assert.Equal(t, sensors.Right, sensors.FrontRight)

	// Open space caps at the sensor range.
	w.Robot = RobotPose{X: 10, Y: 19, Direction: 0, Energy: 100}
	delete(w.Obstacles, Coord{10, 7})
	delete(w.Obstacles, Coord{9, 10})
	delete(w.Obstacles, Coord{14, 10})
	assert.Equal(t, sensorRange, w.Sensors().Front)
}

func TestStepReward(t *testing.T) {
	tests := []struct {
		name        string
		prev        int
		current     int
		collision   bool
		reachedGoal bool
		want        float64
	}{
		{"plain step", 5, 5, false, false, -0.1},
		{"progress", 5, 4, false, false, 0.9},
		{"regression", 5, 6, false, false, -1.1},
		{"collision", 5, 5, true, false, -5.1},
		{"goal short-circuits", 1, 0, false, true, 99.9},
		{"goal beats collision", 1, 0, true, true, 99.9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, stepReward(tc.prev, tc.current, tc.collision, tc.reachedGoal), 1e-9)
		})
	}
}

func TestRotateHelpers(t *testing.T) {
	assert.Equal(t, 3, rotateLeft(0))
	assert.Equal(t, 0, rotateRight(3))
	assert.Equal(t, 1, rotateRight(0))
}
