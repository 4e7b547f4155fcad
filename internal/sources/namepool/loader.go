package namepool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetmx/fleetmx/internal/alias"
)

// poolsConfig is the YAML schema of a name pool file.
type poolsConfig struct {
	First []string `yaml:"first"`
	Last  []string `yaml:"last"`
}

// Loader handles loading and parsing of the name pool YAML file.
type Loader struct {
	filePath string
}

// NewLoader creates a new name pool loader. An empty filePath means the
// built-in pools are used.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the name pool file into usable pools.
func (l *Loader) Load() (alias.Pools, error) {
	if l.filePath == "" {
		return alias.DefaultPools(), nil
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return alias.Pools{}, fmt.Errorf("failed to read name pool file: %w", err)
	}

	var config poolsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return alias.Pools{}, fmt.Errorf("failed to parse name pool yaml: %w", err)
	}

	return NewMapper().MapPools(config)
}
