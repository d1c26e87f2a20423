package engine

import (
	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/statemachine"
)

// syncPhaseStatuses recomputes each non-terminal phase's derived status from
// its tasks (spec §3: "a phase's status is derived") and persists any change
// through the state machine. A phase moving straight from pending to
// completed (every task finished or skipped without the phase ever being
// observed mid-run) steps through running first, since that is the only
// edge the phase state machine allows.
func (e *Engine) syncPhaseStatuses(snap domain.Snapshot) error {
	for _, phase := range snap.Phases {
		if domain.IsPhaseDone(phase.Status) {
			continue
		}
		target := domain.DerivePhaseStatus(snap.TasksByPhase(phase.ID))
		if err := e.syncOnePhaseStatus(phase, target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) syncOnePhaseStatus(phase domain.Phase, target domain.PhaseStatus) error {
	current := phase.Status
	if target == current {
		return nil
	}
	if current == domain.PhasePending && (target == domain.PhaseCompleted || target == domain.PhaseFailed) {
		if err := e.repo.UpdatePhaseStatus(phase.ID, domain.PhaseRunning); err != nil {
			return err
		}
		current = domain.PhaseRunning
	}
	if target == current || !statemachine.ValidPhaseTransition(current, target) {
		return nil
	}
	return e.repo.UpdatePhaseStatus(phase.ID, target)
}
