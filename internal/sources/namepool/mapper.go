package namepool

import (
	"fmt"
	"strings"

	"github.com/fleetmx/fleetmx/internal/alias"
)

// Mapper converts a raw pool config into cleaned generator pools.
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapPools sanitizes both name lists and rejects configs that leave either
// pool empty.
func (m *Mapper) MapPools(config poolsConfig) (alias.Pools, error) {
	pools := alias.Pools{
		First: sanitizeNames(config.First),
		Last:  sanitizeNames(config.Last),
	}
	if pools.Empty() {
		return alias.Pools{}, fmt.Errorf("name pool file must provide first and last names (%d first, %d last)",
			len(pools.First), len(pools.Last))
	}
	return pools, nil
}

func sanitizeNames(names []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		clean := sanitizeName(name)
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

// sanitizeName lowercases a name and keeps only mailbox-safe characters
// Example: "O'Brien" -> "obrien"
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
