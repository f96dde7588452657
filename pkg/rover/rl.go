package rover

import (
	"fmt"
	"math/rand"
)

// RobotActions is the canonical tabular action set, in tie-break order.
var RobotActions = [4]string{"FWD", "L", "R", "S"}

// Params are the Q-learning hyperparameters persisted per deployment.
type Params struct {
	Alpha        float64 `json:"alpha"`
	Gamma        float64 `json:"gamma"`
	Epsilon      float64 `json:"epsilon"`
	EpsilonDecay float64 `json:"epsilon_decay"`
	EpsilonMin   float64 `json:"epsilon_min"`
}

// DefaultParams returns the canonical hyperparameter set.
func DefaultParams() Params {
	return Params{
		Alpha:        0.2,
		Gamma:        0.95,
		Epsilon:      1.0,
		EpsilonDecay: 0.9995,
		EpsilonMin:   0.05,
	}
}

// BuildStateKey discretizes a telemetry observation into a stable table
// key: heading, goal-delta signs, and bucketed obstacle distances.
func BuildStateKey(observation map[string]any) string {
	direction := ((intFrom(observation["direction"], 0) % 4) + 4) % 4
	dx := intFrom(observation["goal_x"], 0) - intFrom(observation["x"], 0)
	dy := intFrom(observation["goal_y"], 0) - intFrom(observation["y"], 0)

	sensors, _ := observation["sensors"].(map[string]any)
	front := bucketSensor(intFrom(sensors["front"], 0))
	left := bucketSensor(intFrom(sensors["left"], 0))
	right := bucketSensor(intFrom(sensors["right"], 0))

	return fmt.Sprintf("d%d_dx%d_dy%d_f%d_l%d_r%d", direction, sign(dx), sign(dy), front, left, right)
}

// bucketSensor collapses a free-tile distance into four occupancy classes.
func bucketSensor(raw int) int {
	if raw <= 0 {
		return 0
	}
	if raw == 1 {
		return 1
	}
	if raw <= 3 {
		return 2
	}
	return 3
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// chooseAction picks epsilon-greedily from the Q-values. Exploitation
// breaks ties toward the canonical action order.
func chooseAction(qValues map[string]float64, epsilon float64, randFloat func() float64, randIndex func(n int) int) (string, string) {
	if randFloat() < epsilon {
		return RobotActions[randIndex(len(RobotActions))], "explore"
	}
	return bestAction(qValues), "exploit"
}

// bestAction returns the greedy choice under the current Q-values.
func bestAction(qValues map[string]float64) string {
	best := RobotActions[0]
	bestQ := qValues[best]
	for _, action := range RobotActions[1:] {
		if q := qValues[action]; q > bestQ {
			best = action
			bestQ = q
		}
	}
	return best
}

// ActionCommand converts a compact RL action into the robot command
// payload the simulator understands.
func ActionCommand(action string) map[string]any {
	switch action {
	case "FWD":
		return map[string]any{"type": "robot.move_forward", "amount": 1}
	case "L":
		return map[string]any{"type": "robot.turn_left"}
	case "R":
		return map[string]any{"type": "robot.turn_right"}
	}
	return map[string]any{"type": "robot.stop"}
}

// qLearningUpdate applies the tabular update rule toward the bootstrapped
// target.
func qLearningUpdate(currentQ, reward, maxNextQ, alpha, gamma float64) float64 {
	target := reward + gamma*maxNextQ
	return currentQ + alpha*(target-currentQ)
}

func defaultRandFloat() float64 { return rand.Float64() }

func defaultRandIndex(n int) int { return rand.Intn(n) }
