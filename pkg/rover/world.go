// Package rover implements the grid-world navigation domain: a seeded
// simulation world, tabular Q-learning plugins wired into the cognition
// pipeline, and the background runtime loop that drives telemetry and
// reward feedback through the engine.
package rover

import (
	"math/rand"

	"github.com/google/uuid"
)

const (
	defaultWidth          = 80
	defaultHeight         = 60
	defaultSeed           = 42
	defaultMaxSteps       = 2000
	defaultCollisionLimit = 20

	obstacleDensity = 0.12
	sensorRange     = 10
)

// Coord is one grid cell.
type Coord struct {
	X int
	Y int
}

// DirToVec maps the four headings to unit vectors: 0=up, 1=right, 2=down,
// 3=left.
var DirToVec = [4]Coord{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// RobotPose is the rover's position, heading, and energy reserve.
type RobotPose struct {
	X         int
	Y         int
	Direction int
	Energy    float64
}

// SensorReading is the free-tile distance in each scanned direction.
// Front-left and left share a beam, as do front-right and right.
type SensorReading struct {
	Front      int
	FrontLeft  int
	FrontRight int
	Left       int
	Right      int
}

// EpisodeMetrics tracks one episode's progress counters.
type EpisodeMetrics struct {
	Tick             int
	CumulativeReward float64
	Collisions       int
	Done             bool
	Reason           string
}

// WorldSnapshot is a point-in-time copy of the world for payload builders.
type WorldSnapshot struct {
	Tick             int
	EpisodeID        string
	Width            int
	Height           int
	Robot            RobotPose
	Goal             Coord
	Start            Coord
	LastReward       float64
	CumulativeReward float64
	Distance         int
	Collisions       int
	Done             bool
	Reason           string
}

// GridWorld is the deterministic rover simulation. The same seed always
// yields the same obstacle field, start, and goal, so learning runs are
// reproducible. Not safe for concurrent use; the runtime serializes access.
type GridWorld struct {
	Width          int
	Height         int
	Seed           int64
	MaxSteps       int
	CollisionLimit int

	EpisodeID  string
	Obstacles  map[Coord]bool
	Robot      RobotPose
	Goal       Coord
	Start      Coord
	Metrics    EpisodeMetrics
	LastReward float64
}

// NewGridWorld builds a world with the given dimensions and seed; zero
// values fall back to the 80x60 seed-42 defaults.
func NewGridWorld(width, height int, seed int64) *GridWorld {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	if seed == 0 {
		seed = defaultSeed
	}
	w := &GridWorld{
		Width:          width,
		Height:         height,
		Seed:           seed,
		MaxSteps:       defaultMaxSteps,
		CollisionLimit: defaultCollisionLimit,
	}
	w.Reset()
	return w
}

// Reset starts a fresh episode: new episode id, regenerated obstacles, and
// re-rolled start/goal cells from the world seed.
func (w *GridWorld) Reset() {
	w.EpisodeID = uuid.NewString()
	w.Metrics = EpisodeMetrics{}
	w.Obstacles = generateObstacles(w.Width, w.Height, w.Seed)

	blocked := make(map[Coord]bool, len(w.Obstacles)+1)
	for cell := range w.Obstacles {
		blocked[cell] = true
	}
	start := randomFreeCell(w.Width, w.Height, blocked, w.Seed+1)
	blocked[start] = true
	goal := randomFreeCell(w.Width, w.Height, blocked, w.Seed+2)

	w.Start = start
	w.Robot = RobotPose{X: start.X, Y: start.Y, Direction: 0, Energy: 100.0}
	w.Goal = goal
	w.LastReward = 0.0
}

// Distance is the Manhattan distance from the rover to the goal.
func (w *GridWorld) Distance() int {
	return abs(w.Robot.X-w.Goal.X) + abs(w.Robot.Y-w.Goal.Y)
}

// Sensors scans the free-tile distance ahead and to each side.
func (w *GridWorld) Sensors() SensorReading {
	origin := Coord{w.Robot.X, w.Robot.Y}
	left := w.distanceToBlock(origin, rotateLeft(w.Robot.Direction))
	right := w.distanceToBlock(origin, rotateRight(w.Robot.Direction))
	return SensorReading{
		Front:      w.distanceToBlock(origin, w.Robot.Direction),
		FrontLeft:  left,
		FrontRight: right,
		Left:       left,
		Right:      right,
	}
}

// ApplyAction advances the simulation one tick with the given robot
// command. Finished episodes ignore further commands until Reset.
func (w *GridWorld) ApplyAction(action map[string]any) {
	if w.Metrics.Done {
		return
	}
	actionType, _ := action["type"].(string)
	if actionType == "" {
		actionType = "robot.stop"
	}
	prevDistance := w.Distance()
	collision := false

	switch actionType {
	case "robot.turn_left":
		w.Robot.Direction = rotateLeft(w.Robot.Direction)
	case "robot.turn_right":
		w.Robot.Direction = rotateRight(w.Robot.Direction)
	case "robot.move_forward":
		amount := intFrom(action["amount"], 1)
		vec := DirToVec[w.Robot.Direction]
		target := Coord{w.Robot.X + vec.X*amount, w.Robot.Y + vec.Y*amount}
		if target.X < 0 || target.Y < 0 || target.X >= w.Width || target.Y >= w.Height || w.Obstacles[target] {
			collision = true
			w.Metrics.Collisions++
		} else {
			w.Robot.X, w.Robot.Y = target.X, target.Y
		}
	}

	w.Metrics.Tick++
	reachedGoal := w.Robot.X == w.Goal.X && w.Robot.Y == w.Goal.Y
	currentDistance := w.Distance()
	reward := stepReward(prevDistance, currentDistance, collision, reachedGoal)
	w.LastReward = reward
	w.Metrics.CumulativeReward += reward

	switch {
	case reachedGoal:
		w.Metrics.Done = true
		w.Metrics.Reason = "goal"
	case w.Metrics.Tick >= w.MaxSteps:
		w.Metrics.Done = true
		w.Metrics.Reason = "timeout"
	case w.Metrics.Collisions >= w.CollisionLimit:
		w.Metrics.Done = true
		w.Metrics.Reason = "collision"
	}
}

// Snapshot copies the world for payload building outside the world lock.
func (w *GridWorld) Snapshot() *WorldSnapshot {
	return &WorldSnapshot{
		Tick:             w.Metrics.Tick,
		EpisodeID:        w.EpisodeID,
		Width:            w.Width,
		Height:           w.Height,
		Robot:            w.Robot,
		Goal:             w.Goal,
		Start:            w.Start,
		LastReward:       w.LastReward,
		CumulativeReward: w.Metrics.CumulativeReward,
		Distance:         w.Distance(),
		Collisions:       w.Metrics.Collisions,
		Done:             w.Metrics.Done,
		Reason:           w.Metrics.Reason,
	}
}

// stepReward scores one tick: a step cost, a large goal bonus, a collision
// penalty, and a distance-delta shaping term.
func stepReward(prevDistance, currentDistance int, collision, reachedGoal bool) float64 {
	reward := -0.1
	if reachedGoal {
		return reward + 100.0
	}
	if collision {
		reward -= 5.0
	}
	if currentDistance < prevDistance {
		reward += 1.0
	} else if currentDistance > prevDistance {
		reward -= 1.0
	}
	return reward
}

// distanceToBlock counts free tiles from origin until a wall or obstacle,
// capped at the sensor range.
func (w *GridWorld) distanceToBlock(origin Coord, direction int) int {
	vec := DirToVec[direction]
	for distance := 1; distance <= sensorRange; distance++ {
		next := Coord{origin.X + vec.X*distance, origin.Y + vec.Y*distance}
		if next.X < 0 || next.Y < 0 || next.X >= w.Width || next.Y >= w.Height || w.Obstacles[next] {
			return distance - 1
		}
	}
	return sensorRange
}

// generateObstacles fills the grid to the target density with a seeded RNG.
func generateObstacles(width, height int, seed int64) map[Coord]bool {
	rng := rand.New(rand.NewSource(seed))
	target := int(float64(width) * float64(height) * obstacleDensity)
	obstacles := make(map[Coord]bool, target)
	for len(obstacles) < target {
		obstacles[Coord{rng.Intn(width), rng.Intn(height)}] = true
	}
	return obstacles
}

// randomFreeCell rolls seeded candidates until one misses the blocked set.
func randomFreeCell(width, height int, blocked map[Coord]bool, seed int64) Coord {
	rng := rand.New(rand.NewSource(seed))
	for {
		candidate := Coord{rng.Intn(width), rng.Intn(height)}
		if !blocked[candidate] {
			return candidate
		}
	}
}

func rotateLeft(direction int) int { return ((direction-1)%4 + 4) % 4 }

func rotateRight(direction int) int { return (direction + 1) % 4 }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intFrom(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
