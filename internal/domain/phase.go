package domain

import "fmt"

// Phase names one unit of provisioning work. Each phase owns exactly one
// state transition: From() is the state a record must hold for the phase to
// run, Target() the state reached when it succeeds.
type Phase string

const (
	PhaseRegistration Phase = "registration"
	PhaseDNS          Phase = "dns"
	PhaseVerification Phase = "verification"
	PhaseAliases      Phase = "aliases"
	PhaseCompletion   Phase = "completion"
)

var phaseEdges = map[Phase][2]State{
	PhaseRegistration: {StatePending, StateProviderRegistered},
	PhaseDNS:          {StateProviderRegistered, StateDNSConfigured},
	PhaseVerification: {StateDNSConfigured, StateVerified},
	PhaseAliases:      {StateVerified, StateAliasesCreated},
	PhaseCompletion:   {StateAliasesCreated, StateCompleted},
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseEdges[p]
	return ok
}

// From returns the state a record must hold for this phase to be runnable.
func (p Phase) From() State {
	return phaseEdges[p][0]
}

// Target returns the state a record reaches when this phase succeeds.
func (p Phase) Target() State {
	return phaseEdges[p][1]
}

// ParsePhase validates a raw string loaded from storage.
func ParsePhase(raw string) (Phase, error) {
	p := Phase(raw)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", raw)
	}
	return p, nil
}
