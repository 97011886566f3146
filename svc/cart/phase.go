package cart

import (
	"github.com/dmitrymomot/storefront/pkg/statemachine"
)

// Phase is the synchronization phase of the local cart mirror.
type Phase string

const (
	PhaseEmpty   Phase = "empty"
	PhaseLoading Phase = "loading"
	PhaseSynced  Phase = "synced"
)

type trigger string

const (
	triggerFetch   trigger = "fetch"
	triggerLoaded  trigger = "loaded"
	triggerFailed  trigger = "failed"
	triggerMutated trigger = "mutated"
	triggerCleared trigger = "cleared"
)

var allPhases = []Phase{PhaseEmpty, PhaseLoading, PhaseSynced}

func newLifecycle() *statemachine.Machine[Phase, trigger] {
	return statemachine.MustNew(PhaseEmpty,
		statemachine.Transition[Phase, trigger]{From: allPhases, To: PhaseLoading, On: triggerFetch},
		statemachine.Transition[Phase, trigger]{From: []Phase{PhaseLoading}, To: PhaseSynced, On: triggerLoaded},
		statemachine.Transition[Phase, trigger]{From: []Phase{PhaseLoading}, To: PhaseEmpty, On: triggerFailed},
		statemachine.Transition[Phase, trigger]{From: allPhases, To: PhaseSynced, On: triggerMutated},
		statemachine.Transition[Phase, trigger]{From: allPhases, To: PhaseEmpty, On: triggerCleared},
	)
}
