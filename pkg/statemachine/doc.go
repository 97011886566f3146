// Package statemachine implements a small generic finite state machine.
//
// States and events are any comparable types, typically string-based enums.
// A Transition may list several source states, which keeps tables such as
// "any state --cleared--> empty" short. Guards select between transitions
// sharing a (state, event) pair, actions run before the state changes and can
// veto it, observers run after it.
//
// The cart synchronizer drives its Empty/Loading/Synced lifecycle with it:
//
//	m := statemachine.MustNew(Empty,
//	    statemachine.Transition[Phase, Trigger]{From: []Phase{Empty, Synced}, To: Loading, On: Fetch},
//	    statemachine.Transition[Phase, Trigger]{From: []Phase{Loading}, To: Synced, On: Loaded},
//	)
//	err := m.Fire(ctx, Fetch)
package statemachine
