package alias

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	// baseAttempts bounds how often a fresh base name is drawn before
	// falling back to numeric suffixes.
	baseAttempts = 8
	// narrowSuffixAttempts tries suffixes in 1..99 first.
	narrowSuffixAttempts = 10
	// wideSuffixAttempts then tries 1..9999 before giving up.
	wideSuffixAttempts = 10
)

// Generator produces mailbox-style alias local-parts from name pools. A coin
// flip weighted by ratio picks the shape of each alias: first name only
// ("james") or dotted first and last name ("maria.lopez"). Collisions are
// resolved with numeric suffixes so the shape distribution stays intact.
type Generator struct {
	pools Pools
	ratio float64
	rng   *rand.Rand
}

// NewGenerator builds a generator. ratio is the probability of the
// first-name-only shape and must be within [0, 1]. A nil rng gets seeded
// from the clock; tests pass a fixed seed for reproducibility.
func NewGenerator(pools Pools, ratio float64, rng *rand.Rand) (*Generator, error) {
	if pools.Empty() {
		return nil, fmt.Errorf("name pools must contain first and last names (%d first, %d last)",
			len(pools.First), len(pools.Last))
	}
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("first-name ratio %v out of range [0, 1]", ratio)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{pools: lowercased(pools), ratio: ratio, rng: rng}, nil
}

// lowercased copies the pools with every name lowercased, so local-parts come
// out mailbox-ready no matter how the source file spells them.
func lowercased(pools Pools) Pools {
	out := Pools{
		First: make([]string, len(pools.First)),
		Last:  make([]string, len(pools.Last)),
	}
	for i, name := range pools.First {
		out.First[i] = strings.ToLower(name)
	}
	for i, name := range pools.Last {
		out.Last[i] = strings.ToLower(name)
	}
	return out
}

// Generate produces n unique local-parts for domain, claiming each one in
// reg so later calls for other domains can never reuse them.
func (g *Generator) Generate(domain string, n int, reg *Registry) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("alias count %d must not be negative", n)
	}

	out := make([]string, 0, n)
	drawn := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		local, err := g.next(domain, reg, drawn)
		if err != nil {
			return nil, fmt.Errorf("alias %d of %d for %s: %w", i+1, n, domain, err)
		}
		out = append(out, local)
	}
	return out, nil
}

// next yields one claimed local-part. The shape is fixed by a single coin
// flip; fresh bases of that shape are preferred, numeric suffixes keep the
// shape when the base space is used up.
func (g *Generator) next(domain string, reg *Registry, drawn map[string]struct{}) (string, error) {
	firstOnly := g.rng.Float64() < g.ratio

	var base string
	for attempt := 0; attempt < baseAttempts; attempt++ {
		base = g.draw(firstOnly)
		if _, seen := drawn[base]; seen {
			continue
		}
		if reg.Claim(base, domain) {
			drawn[base] = struct{}{}
			return base, nil
		}
	}
	drawn[base] = struct{}{}

	for attempt := 0; attempt < narrowSuffixAttempts; attempt++ {
		candidate := base + strconv.Itoa(g.rng.Intn(99)+1)
		if reg.Claim(candidate, domain) {
			return candidate, nil
		}
	}
	for attempt := 0; attempt < wideSuffixAttempts; attempt++ {
		candidate := base + strconv.Itoa(g.rng.Intn(9999)+1)
		if reg.Claim(candidate, domain) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not find a free variant of %q", base)
}

func (g *Generator) draw(firstOnly bool) string {
	first := g.pools.First[g.rng.Intn(len(g.pools.First))]
	if firstOnly {
		return first
	}
	last := g.pools.Last[g.rng.Intn(len(g.pools.Last))]
	return first + "." + last
}
