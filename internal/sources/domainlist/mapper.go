package domainlist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fleetmx/fleetmx/internal/logger"
)

// domainPattern accepts registrable names: two or more labels of letters,
// digits and inner hyphens.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// Mapper normalizes raw domain lines into a clean, deduplicated list.
type Mapper struct {
	log logger.Logger
}

// NewMapper creates a new mapper instance
func NewMapper(log logger.Logger) *Mapper {
	return &Mapper{log: log}
}

// MapDomains lowercases each entry, strips one trailing dot, drops invalid
// names with a warning and removes duplicates while preserving order.
func (m *Mapper) MapDomains(lines []string) ([]string, error) {
	var domains []string
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		name := normalizeDomain(line)
		if !domainPattern.MatchString(name) {
			m.log.Warn("skipping invalid domain", logger.String("line", line))
			continue
		}
		if _, dup := seen[name]; dup {
			m.log.Warn("skipping duplicate domain", logger.String("domain", name))
			continue
		}
		seen[name] = struct{}{}
		domains = append(domains, name)
	}

	if len(domains) == 0 {
		return nil, fmt.Errorf("no valid domains found in list")
	}
	return domains, nil
}

// normalizeDomain lowercases the name and removes a single trailing dot
// Example: "Example.COM." -> "example.com"
func normalizeDomain(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".")
}
