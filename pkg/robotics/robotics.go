package robotics

import (
	"log/slog"

	"github.com/pce-project/pce/pkg/engine"
)

// Robotics bundles the os.robotics plugins behind one constructor.
type Robotics struct {
	Values     ValueModel
	Decision   *Decision
	Adaptation *Adaptation
	Twin       *TwinApplier
	Committee  *Committee
}

func New(opts ...CommitteeOption) *Robotics {
	logger := slog.With("component", "os_robotics")
	committee := NewCommittee(logger, opts...)
	return &Robotics{
		Values:     ValueModel{},
		Decision:   &Decision{committee: committee, logger: logger},
		Adaptation: &Adaptation{logger: logger},
		Twin:       &TwinApplier{logger: logger},
		Committee:  committee,
	}
}

// Register wires the robotics plugins into the engine registry.
func (r *Robotics) Register(reg *engine.Registry) {
	reg.RegisterValueModel(r.Values)
	reg.RegisterDecisionPlugin(r.Decision)
	reg.RegisterAdaptationPlugin(r.Adaptation)
	reg.RegisterStateApplier(r.Twin)
}
