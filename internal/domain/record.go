package domain

import (
	"fmt"
	"time"
)

// Record is the canonical provisioning truth for one domain.
//
// It is NOT tied to any provider API shape. Everything observed from the
// forwarding provider or the DNS host is merged into this structure, and the
// state file persists it verbatim.
//
// A Record is uniquely identified by its Name. Records are never deleted,
// only updated.
type Record struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// Name is the fully-qualified domain name, lower-case.
	Name string `json:"name"`

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	// State is the current lifecycle position.
	State State `json:"state"`

	// FailedPhase names the phase a Failed record will retry.
	// Empty unless State is Failed.
	FailedPhase Phase `json:"failed_phase,omitempty"`

	// ─────────────────────────────
	// Provider-assigned facts
	// ─────────────────────────────

	// ProviderID is assigned by the forwarding provider on registration.
	ProviderID string `json:"provider_id,omitempty"`

	// VerificationToken is published in the TXT verification record.
	// Falls back to ProviderID when the plan has no protection support.
	VerificationToken string `json:"verification_token,omitempty"`

	// HasMXRecord and HasTXTRecord mirror the provider's view of the
	// domain's DNS, never a local lookup.
	HasMXRecord  bool `json:"has_mx_record"`
	HasTXTRecord bool `json:"has_txt_record"`

	// ─────────────────────────────
	// Aliases & audit trail
	// ─────────────────────────────

	// Aliases lists the local-parts created for this domain, in creation
	// order.
	Aliases []string `json:"aliases,omitempty"`

	// Errors is the append-only failure history. Never cleared.
	Errors []ErrorEntry `json:"errors,omitempty"`

	// AttemptCounts tracks how many attempts each phase has consumed.
	AttemptCounts map[Phase]int `json:"attempt_counts,omitempty"`

	// ─────────────────────────────
	// Timestamps
	// ─────────────────────────────

	// CreatedAt is the first time the domain appeared in an input list.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on any mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorEntry is one line of a record's failure history.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
}

// NewRecord creates a fresh Pending record for a domain name.
func NewRecord(name string) *Record {
	now := time.Now()
	return &Record{
		Name:      name,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Eligible reports whether phase p should run given the record's state:
// either the record sits exactly at the phase's entry state, or it failed
// this very phase and is being resumed.
func (r *Record) Eligible(p Phase) bool {
	if r.State == p.From() {
		return true
	}
	return r.State == StateFailed && r.FailedPhase == p
}

// Advance moves the record to the target state of phase p. Illegal moves
// (wrong entry state, regressions, leaving Completed) are rejected.
func (r *Record) Advance(p Phase) error {
	if !r.Eligible(p) {
		return fmt.Errorf("domain %s: phase %s not runnable from state %s", r.Name, p, r.State)
	}
	next := p.Target()
	if !r.State.CanTransition(next) {
		return fmt.Errorf("domain %s: illegal transition %s -> %s", r.Name, r.State, next)
	}
	r.State = next
	r.FailedPhase = ""
	r.UpdatedAt = time.Now()
	return nil
}

// Fail parks the record in Failed for phase p and appends the cause to the
// error history. Completed records cannot fail.
func (r *Record) Fail(p Phase, msg string) error {
	if !r.State.CanTransition(StateFailed) {
		return fmt.Errorf("domain %s: illegal transition %s -> %s", r.Name, r.State, StateFailed)
	}
	now := time.Now()
	r.State = StateFailed
	r.FailedPhase = p
	r.Errors = append(r.Errors, ErrorEntry{Time: now, Phase: p, Message: msg})
	r.UpdatedAt = now
	return nil
}

// RecordAttempt bumps the attempt counter for phase p.
func (r *Record) RecordAttempt(p Phase) {
	if r.AttemptCounts == nil {
		r.AttemptCounts = make(map[Phase]int)
	}
	r.AttemptCounts[p]++
}

// Attempts returns how many attempts phase p has consumed so far.
func (r *Record) Attempts(p Phase) int {
	return r.AttemptCounts[p]
}

// HasAlias reports whether the local-part was already created for this domain.
func (r *Record) HasAlias(localPart string) bool {
	for _, a := range r.Aliases {
		if a == localPart {
			return true
		}
	}
	return false
}

// AddAlias appends a local-part to the record, skipping duplicates.
func (r *Record) AddAlias(localPart string) {
	if r.HasAlias(localPart) {
		return
	}
	r.Aliases = append(r.Aliases, localPart)
	r.UpdatedAt = time.Now()
}

// Clone returns a deep copy, so stored records never alias a caller's working
// copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.Aliases != nil {
		c.Aliases = append([]string(nil), r.Aliases...)
	}
	if r.Errors != nil {
		c.Errors = append([]ErrorEntry(nil), r.Errors...)
	}
	if r.AttemptCounts != nil {
		c.AttemptCounts = make(map[Phase]int, len(r.AttemptCounts))
		for k, v := range r.AttemptCounts {
			c.AttemptCounts[k] = v
		}
	}
	return &c
}

// Validate rejects records loaded from storage with unknown states or phases.
func (r *Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("record with empty name")
	}
	if !r.State.Valid() {
		return fmt.Errorf("domain %s: unknown state %q", r.Name, r.State)
	}
	if r.State == StateFailed {
		if !r.FailedPhase.Valid() {
			return fmt.Errorf("domain %s: failed record with unknown phase %q", r.Name, r.FailedPhase)
		}
	} else if r.FailedPhase != "" {
		return fmt.Errorf("domain %s: failed_phase %q set on non-failed record", r.Name, r.FailedPhase)
	}
	return nil
}
