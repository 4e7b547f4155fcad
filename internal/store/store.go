package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fleetmx/fleetmx/internal/domain"
	"github.com/fleetmx/fleetmx/internal/logger"
)

// snapshot is the on-disk shape of the state file.
type snapshot struct {
	SavedAt time.Time        `json:"saved_at"`
	Records []*domain.Record `json:"records"`
}

// Store keeps every domain provisioning record in memory and persists them
// as one JSON snapshot. Reads and writes exchange deep copies, so callers
// can never mutate shared state behind the lock. Save replaces the file
// atomically; a crash mid-write leaves the previous snapshot intact.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*domain.Record
	log     logger.Logger
}

// Open loads the snapshot at path, or starts empty when the file does not
// exist yet. A snapshot containing an invalid record is rejected outright.
func Open(path string, log logger.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*domain.Record),
		log:     log,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info("state file not found, starting fresh", logger.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}

	for _, rec := range snap.Records {
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("state file %s holds invalid record %q: %w", path, rec.Name, err)
		}
		if _, dup := s.records[rec.Name]; dup {
			return nil, fmt.Errorf("state file %s holds duplicate record %q", path, rec.Name)
		}
		s.records[rec.Name] = rec
	}

	log.Info("state loaded",
		logger.String("path", path),
		logger.Int("records", len(s.records)))
	return s, nil
}

// Get returns a copy of the record for name.
func (s *Store) Get(name string) (*domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Upsert stores a copy of rec, replacing any previous record of the same
// name. The change is in memory only until Save runs.
func (s *Store) Upsert(rec *domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Name] = rec.Clone()
}

// All returns copies of every record, sorted by domain name.
func (s *Store) All() []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByState returns copies of the records currently in state, sorted by name.
func (s *Store) ByState(state domain.State) []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Record
	for _, rec := range s.records {
		if rec.State == state {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts tallies records per state.
func (s *Store) Counts() map[domain.State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.State]int)
	for _, rec := range s.records {
		counts[rec.State]++
	}
	return counts
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Save writes the snapshot to disk, creating parent directories as needed.
func (s *Store) Save() error {
	s.mu.RLock()
	snap := snapshot{
		SavedAt: time.Now().UTC(),
		Records: make([]*domain.Record, 0, len(s.records)),
	}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].Name < snap.Records[j].Name })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
