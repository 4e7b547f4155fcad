package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Report aggregates one audit run.
type Report struct {
	GeneratedAt         time.Time `json:"generated_at"`
	Domains             int       `json:"domains"`
	FullyConfigured     int       `json:"fully_configured"`
	PartiallyConfigured int       `json:"partially_configured"`
	NotConfigured       int       `json:"not_configured"`
	Results             []Result  `json:"results"`
}

// NewReport tallies results into a report.
func NewReport(results []Result) *Report {
	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		Domains:     len(results),
		Results:     results,
	}
	for _, res := range results {
		switch res.Classification {
		case FullyConfigured:
			rep.FullyConfigured++
		case PartiallyConfigured:
			rep.PartiallyConfigured++
		case NotConfigured:
			rep.NotConfigured++
		}
	}
	return rep
}

// checkOrder fixes the CSV column layout.
var checkOrder = []string{
	CheckProviderDomain,
	CheckProviderVerified,
	CheckProviderAliases,
	CheckDNSZone,
	CheckDNSTXT,
	CheckDNSMX,
}

// WriteFile renders the report to path, picking the format from the file
// extension. ".json" and ".csv" are supported.
func (r *Report) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return r.writeJSON(path)
	case ".csv":
		return r.writeCSV(path)
	default:
		return fmt.Errorf("unsupported report format %q, use .json or .csv", ext)
	}
}

func (r *Report) writeJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (r *Report) writeCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"domain", "classification"}, checkOrder...)
	header = append(header, "issues")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for _, res := range r.Results {
		passed := make(map[string]bool, len(res.Checks))
		for _, c := range res.Checks {
			passed[c.Name] = c.Passed
		}

		row := []string{res.Domain, string(res.Classification)}
		for _, name := range checkOrder {
			row = append(row, strconv.FormatBool(passed[name]))
		}
		row = append(row, strings.Join(res.Issues, "; "))
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
