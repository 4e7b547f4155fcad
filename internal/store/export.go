package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// AliasExport reads and writes the flat list of provisioned addresses, one
// "local@domain" per line. The pipeline rewrites it from the state records
// after every run and seeds the uniqueness registry from it at startup.
type AliasExport struct {
	path string
}

// NewAliasExport creates an exporter for path.
func NewAliasExport(path string) *AliasExport {
	return &AliasExport{path: path}
}

// Load returns the set of addresses already exported. A missing file yields
// an empty set.
func (e *AliasExport) Load() (map[string]struct{}, error) {
	addresses := make(map[string]struct{})

	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return addresses, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read alias export: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		addresses[strings.ToLower(line)] = struct{}{}
	}
	return addresses, nil
}

// Write replaces the export file with the given addresses, sorted and
// deduplicated, using the same atomic rename as the state snapshot.
func (e *AliasExport) Write(addresses []string) error {
	unique := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		unique[addr] = struct{}{}
	}

	sorted := make([]string, 0, len(unique))
	for addr := range unique {
		sorted = append(sorted, addr)
	}
	sort.Strings(sorted)

	var b strings.Builder
	for _, addr := range sorted {
		b.WriteString(addr)
		b.WriteByte('\n')
	}

	if err := writeFileAtomic(e.path, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to write alias export: %w", err)
	}
	return nil
}
