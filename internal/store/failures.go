package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetmx/fleetmx/internal/domain"
)

// failureEntry is one line of the failure log.
type failureEntry struct {
	Time    time.Time    `json:"time"`
	Domain  string       `json:"domain"`
	Phase   domain.Phase `json:"phase"`
	Message string       `json:"message"`
}

// FailureLog appends one JSON line per failed phase so operators can replay
// what went wrong across runs. An empty path disables it.
type FailureLog struct {
	mu   sync.Mutex
	path string
}

// NewFailureLog creates a failure log writing to path.
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Append records one failure. Lines are flushed per call, so concurrent
// writers never interleave partial entries.
func (f *FailureLog) Append(domainName string, phase domain.Phase, message string) error {
	if f == nil || f.path == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create failure log directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(failureEntry{
		Time:    time.Now().UTC(),
		Domain:  domainName,
		Phase:   phase,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failure entry: %w", err)
	}

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append failure entry: %w", err)
	}
	return nil
}
