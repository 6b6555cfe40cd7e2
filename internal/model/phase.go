package model

import "fmt"

// Phase is a state of the generation controller.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseTrajectoryDerivation Phase = "trajectory_derivation"
	PhaseSceneIteration       Phase = "scene_iteration"
	PhaseViewIteration        Phase = "view_iteration"
	PhaseDone                 Phase = "done"
	PhaseFatalAbort           Phase = "fatal_abort"
)

var terminalPhases = map[Phase]bool{
	PhaseDone:       true,
	PhaseFatalAbort: true,
}

// Controller phase transitions. View iteration returns to scene iteration
// both on success (next scene) and on a budgeted postprocess retry (same
// scene, all views repeated from scratch).
var validPhaseTransitions = map[Phase]map[Phase]bool{
	PhaseIdle: {
		PhaseTrajectoryDerivation: true,
		PhaseFatalAbort:           true,
	},
	PhaseTrajectoryDerivation: {
		PhaseSceneIteration: true,
		PhaseDone:           true, // zero scenes requested
		PhaseFatalAbort:     true,
	},
	PhaseSceneIteration: {
		PhaseViewIteration: true,
		PhaseDone:          true,
		PhaseFatalAbort:    true,
	},
	PhaseViewIteration: {
		PhaseSceneIteration: true,
		PhaseFatalAbort:     true,
	},
}

// IsPhaseTerminal reports whether the controller can leave the given phase.
func IsPhaseTerminal(p Phase) bool {
	return terminalPhases[p]
}

// ValidatePhaseTransition checks a controller phase change against the
// transition table.
func ValidatePhaseTransition(from, to Phase) error {
	if IsPhaseTerminal(from) {
		return fmt.Errorf("cannot transition from terminal phase %q", from)
	}
	allowed, ok := validPhaseTransitions[from]
	if !ok {
		return fmt.Errorf("unknown phase %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid phase transition: %q → %q", from, to)
	}
	return nil
}
