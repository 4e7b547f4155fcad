package domainlist

import (
	"fmt"
	"os"
	"strings"
)

// Loader handles reading the plain-text domain list file. One domain per
// line, blank lines and #-comments ignored.
type Loader struct {
	filePath string
}

// NewLoader creates a new domain list loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the file and returns its lines with comments and blanks
// already dropped. Normalization and validation happen in the mapper.
func (l *Loader) Load() ([]string, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read domains file: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
