package alias

import "strings"

// Registry tracks every local-part claimed across all domains of a run so no
// two mailboxes anywhere in the fleet ever share one. It is not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Registry struct {
	owners   map[string]string // local-part -> owning domain
	reserved map[string]struct{}
}

// NewRegistry builds a registry with the given local-parts permanently
// reserved. Reserved names can never be claimed by the generator.
func NewRegistry(reserved ...string) *Registry {
	r := &Registry{
		owners:   make(map[string]string),
		reserved: make(map[string]struct{}, len(reserved)),
	}
	for _, name := range reserved {
		r.reserved[normalize(name)] = struct{}{}
	}
	return r
}

// Claim records localPart as owned by domain. It returns false when the name
// is reserved or already owned, leaving the registry unchanged.
func (r *Registry) Claim(localPart, domain string) bool {
	key := normalize(localPart)
	if key == "" {
		return false
	}
	if _, ok := r.reserved[key]; ok {
		return false
	}
	if _, ok := r.owners[key]; ok {
		return false
	}
	r.owners[key] = domain
	return true
}

// InUse reports whether localPart is reserved or already claimed.
func (r *Registry) InUse(localPart string) bool {
	key := normalize(localPart)
	if _, ok := r.reserved[key]; ok {
		return true
	}
	_, ok := r.owners[key]
	return ok
}

// Owner returns the domain that claimed localPart.
func (r *Registry) Owner(localPart string) (string, bool) {
	domain, ok := r.owners[normalize(localPart)]
	return domain, ok
}

// Len returns the number of claimed local-parts, reservations excluded.
func (r *Registry) Len() int {
	return len(r.owners)
}

func normalize(localPart string) string {
	return strings.ToLower(strings.TrimSpace(localPart))
}
