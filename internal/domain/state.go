package domain

import "fmt"

// State is the lifecycle position of a domain record.
//
// States only move forward; the single escape hatch is Failed, reachable from
// every non-terminal state. A record leaving Failed re-enters the lifecycle at
// the completion state of the phase it failed, never earlier.
type State string

const (
	StatePending            State = "pending"
	StateProviderRegistered State = "provider_registered"
	StateDNSConfigured      State = "dns_configured"
	StateVerified           State = "verified"
	StateAliasesCreated     State = "aliases_created"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// transitions is the full legal-move table. Anything absent here is rejected.
var transitions = map[State][]State{
	StatePending:            {StateProviderRegistered, StateFailed},
	StateProviderRegistered: {StateDNSConfigured, StateFailed},
	StateDNSConfigured:      {StateVerified, StateFailed},
	StateVerified:           {StateAliasesCreated, StateFailed},
	StateAliasesCreated:     {StateCompleted, StateFailed},
	StateCompleted:          {},
	StateFailed: {
		StateProviderRegistered,
		StateDNSConfigured,
		StateVerified,
		StateAliasesCreated,
		StateCompleted,
		StateFailed,
	},
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the record is done for good.
func (s State) Terminal() bool {
	return s == StateCompleted
}

// CanTransition reports whether moving from s to next is a legal move.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ParseState validates a raw string loaded from storage.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown state %q", raw)
	}
	return s, nil
}
