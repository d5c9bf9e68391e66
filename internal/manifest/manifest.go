// Package manifest aggregates the outcome of one optimization run.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Pass identifies which optimization pass produced a record.
type Pass string

const (
	PassImages Pass = "images"
	PassFonts  Pass = "fonts"
	PassMinify Pass = "minify"
)

// ProcessedFileRecord captures one successfully processed asset: the outputs
// it produced and how many referencing documents were updated.
type ProcessedFileRecord struct {
	Path      string   `json:"path"`
	Pass      Pass     `json:"pass"`
	Outputs   []string `json:"outputs,omitempty"`
	Rewritten int      `json:"rewritten_files"`
}

// AssetFailure captures a per-asset recoverable failure. The pass continued
// past it; the asset itself was left untouched.
type AssetFailure struct {
	Path  string `json:"path"`
	Pass  Pass   `json:"pass"`
	Cause string `json:"cause"`
}

// StageTiming is the wall-clock duration of one pipeline stage.
type StageTiming struct {
	Stage      string  `json:"stage"`
	DurationMS float64 `json:"duration_ms"`
}

// RunManifest is the complete record of a run, written as JSON beside the
// snapshot and appended to the history ledger.
type RunManifest struct {
	RunID       string                `json:"run_id"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at,omitzero"`
	SourceDir   string                `json:"source_dir"`
	SnapshotDir string                `json:"snapshot_dir"`
	Processed   []ProcessedFileRecord `json:"processed"`
	Failures    []AssetFailure        `json:"failures,omitempty"`
	Timings     []StageTiming         `json:"timings,omitempty"`
	Success     bool                  `json:"success"`
}

// New starts a manifest for a fresh run.
func New(sourceDir, snapshotDir string) *RunManifest {
	return &RunManifest{
		RunID:       uuid.New().String(),
		StartedAt:   time.Now().UTC(),
		SourceDir:   sourceDir,
		SnapshotDir: snapshotDir,
	}
}

// AddProcessed appends a processed-file record.
func (m *RunManifest) AddProcessed(rec ProcessedFileRecord) {
	m.Processed = append(m.Processed, rec)
}

// AddFailure appends a per-asset failure record.
func (m *RunManifest) AddFailure(pass Pass, path string, cause error) {
	m.Failures = append(m.Failures, AssetFailure{
		Path:  path,
		Pass:  pass,
		Cause: cause.Error(),
	})
}

// AddTiming appends a stage timing.
func (m *RunManifest) AddTiming(stage string, d time.Duration) {
	m.Timings = append(m.Timings, StageTiming{
		Stage:      stage,
		DurationMS: float64(d.Milliseconds()),
	})
}

// Finish stamps the end time and overall outcome.
func (m *RunManifest) Finish(success bool) {
	m.FinishedAt = time.Now().UTC()
	m.Success = success
}

// ByPass returns the processed records for one pass, in insertion order.
func (m *RunManifest) ByPass(pass Pass) []ProcessedFileRecord {
	var out []ProcessedFileRecord
	for _, rec := range m.Processed {
		if rec.Pass == pass {
			out = append(out, rec)
		}
	}
	return out
}

// Write serializes the manifest as indented JSON.
func (m *RunManifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}
	return nil
}

// Load reads a manifest back from disk.
func Load(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run manifest: %w", err)
	}
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run manifest: %w", err)
	}
	return &m, nil
}
