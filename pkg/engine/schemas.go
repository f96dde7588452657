package engine

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// osActionTypes are the action types the OS decision plugins can propose.
// The gate synthesizes "<subject>.completed" / "<subject>.rejected" events
// for them, so each pair gets a schema registration of its own.
var osActionTypes = []string{
	"os.generate_bom",
	"os.update_project_plan",
	"os.record_purchase",
	"os.request_quote",
	"os.schedule_test",
	"budget_commit",
}

// payloadSchemas maps event_type to the JSON Schema its payload must satisfy.
// The envelope itself (event_type, source, payload, payload.domain) is checked
// before schema dispatch; these only constrain the domain payload.
var payloadSchemas = map[string]string{
	"observation.core.v1": `{
		"type": "object",
		"required": ["domain"],
		"properties": {
			"domain": {"const": "core"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"session_id": {"type": "string"},
			"correlation_id": {"type": "string"}
		}
	}`,

	"observation.assistant.v1": `{
		"type": "object",
		"required": ["domain", "text"],
		"properties": {
			"domain": {"const": "assistant"},
			"text": {"type": "string", "minLength": 1},
			"session_id": {"type": "string"},
			"correlation_id": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}}
		}
	}`,

	"feedback.assistant.v1": `{
		"type": "object",
		"required": ["domain", "session_id"],
		"properties": {
			"domain": {"const": "assistant"},
			"session_id": {"type": "string", "minLength": 1},
			"reward": {"type": "number"},
			"rating": {"type": "integer", "minimum": 1, "maximum": 5},
			"accepted": {"type": "boolean"},
			"notes": {"type": "string"}
		}
	}`,

	"robot_telemetry": `{
		"type": "object",
		"required": ["domain", "episode_id", "observation"],
		"properties": {
			"domain": {"const": "robotics"},
			"episode_id": {"type": "string", "minLength": 1},
			"observation": {
				"type": "object",
				"required": ["x", "y", "direction", "goal_x", "goal_y", "sensors"],
				"properties": {
					"x": {"type": "number"},
					"y": {"type": "number"},
					"direction": {"type": "integer", "minimum": 0, "maximum": 3},
					"goal_x": {"type": "number"},
					"goal_y": {"type": "number"},
					"sensors": {
						"type": "object",
						"required": ["front", "front_left", "front_right", "left", "right"]
					}
				}
			}
		}
	}`,

	"feedback.robotics.v1": `{
		"type": "object",
		"required": ["domain", "episode_id", "reward"],
		"properties": {
			"domain": {"const": "robotics"},
			"episode_id": {"type": "string", "minLength": 1},
			"reward": {"type": "number"},
			"done": {"type": "boolean"},
			"next_observation": {"type": "object"}
		}
	}`,

	"market_signal": `{
		"type": "object",
		"required": ["domain", "symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume"],
		"properties": {
			"domain": {"const": "trader"},
			"symbol": {"type": "string", "minLength": 1},
			"timeframe": {"type": "string", "minLength": 1},
			"timestamp": {"type": "string", "minLength": 1},
			"open": {"type": "number"},
			"high": {"type": "number"},
			"low": {"type": "number"},
			"close": {"type": "number"},
			"volume": {"type": "number", "minimum": 0}
		}
	}`,

	"project.goal.defined": `{
		"type": "object",
		"required": ["domain", "goal"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"goal": {"type": "string", "minLength": 1},
			"phase": {"type": "string"}
		}
	}`,

	"budget.updated": `{
		"type": "object",
		"required": ["domain", "budget_total"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"budget_total": {"type": "number", "minimum": 0},
			"budget_remaining": {"type": "number"}
		}
	}`,

	"part.candidate.added": `{
		"type": "object",
		"required": ["domain", "component"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"component": {
				"type": "object",
				"required": ["component_id"],
				"properties": {
					"component_id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"quantity": {"type": "number", "minimum": 0},
					"estimated_unit_cost": {"type": "number", "minimum": 0},
					"risk_level": {"type": "string"},
					"depends_on": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}`,

	"purchase.requested": `{
		"type": "object",
		"required": ["domain"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"projected_cost": {"type": "number", "minimum": 0},
			"risk_level": {"type": "string"},
			"purchase_id": {"type": "string"},
			"component_id": {"type": "string"}
		}
	}`,

	"part.received": `{
		"type": "object",
		"required": ["domain", "component_id"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"component_id": {"type": "string", "minLength": 1}
		}
	}`,

	"test.result.recorded": `{
		"type": "object",
		"required": ["domain", "passed"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"passed": {"type": "boolean"},
			"component_id": {"type": "string"},
			"notes": {"type": "string"}
		}
	}`,

	"test.executed": `{
		"type": "object",
		"required": ["domain"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"projected_risk_level": {"type": "string"},
			"scenario": {"type": "string"}
		}
	}`,

	"risk.detected": `{
		"type": "object",
		"required": ["domain"],
		"properties": {
			"domain": {"const": "os.robotics"},
			"description": {"type": "string"},
			"risk_level": {"type": "string"}
		}
	}`,
}

// osEventSchema is the shape shared by gate-synthesized OS events. The gate
// copies the approved plan and audit fields into the payload, so only the
// envelope basics are pinned.
const osEventSchema = `{
	"type": "object",
	"required": ["domain"],
	"properties": {
		"domain": {"const": "os.robotics"},
		"approval_id": {"type": "string"},
		"decision_id": {"type": "string"},
		"actor": {"type": "string"},
		"notes": {"type": "string"},
		"total_cost": {"type": "number"},
		"purchase_id": {"type": "string"}
	}
}`

// compileSchemas builds the validator set for every known event_type,
// including the completion/rejection pairs the approval gate can synthesize.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	docs := make(map[string]string, len(payloadSchemas)+2*(len(osActionTypes)+1))
	for eventType, doc := range payloadSchemas {
		docs[eventType] = doc
	}
	for _, subject := range append([]string{"purchase"}, osActionTypes...) {
		for _, outcome := range []string{"completed", "rejected"} {
			name := subject + "." + outcome
			if _, ok := docs[name]; !ok {
				docs[name] = osEventSchema
			}
		}
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiled := make(map[string]*jsonschema.Schema, len(docs))
	for eventType, doc := range docs {
		url := "pce://schemas/" + eventType + ".json"
		if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("adding schema for %s: %w", eventType, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", eventType, err)
		}
		compiled[eventType] = sch
	}
	return compiled, nil
}
