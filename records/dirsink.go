// Package records defines harvested records and run summaries, and a sink
// that stores them as JSON files on disk.
package records

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const summaryFile = "summary.json"

// DirSink stores each run in its own directory, one JSON file per record
// plus a summary.json.
type DirSink struct {
	storageDir string
}

// ReadError describes a failure to read a single record file.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

// ListResult contains the records of a run, including any per-file errors
// that occurred while reading them.
type ListResult struct {
	Records []Record
	Errors  []ReadError
}

// NewDirSink creates a sink rooted at storageDir.
func NewDirSink(storageDir string) (*DirSink, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &DirSink{
		storageDir: storageDir,
	}, nil
}

// Accept writes the run summary and every record of the run.
func (d *DirSink) Accept(ctx context.Context, summary Summary, recs []Record) error {
	runDir := d.runDir(summary.RunID)
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeJSON(filepath.Join(runDir, summaryFile), summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(runDir, fileName(i, rec.ID)), rec); err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
		}
	}

	return nil
}

// Summary reads the summary of a run. A missing run returns nil without an
// error.
func (d *DirSink) Summary(runID uuid.UUID) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(d.runDir(runID), summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// List returns the records of a run in the order they were accepted.
// Corrupted files are collected in the
// result's Errors slice rather than failing the whole listing.
func (d *DirSink) List(runID uuid.UUID) (*ListResult, error) {
	entries, err := os.ReadDir(d.runDir(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory: %w", err)
	}

	result := &ListResult{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" || entry.Name() == summaryFile {
			continue
		}

		data, err := os.ReadFile(filepath.Join(d.runDir(runID), entry.Name()))
		if err != nil {
			result.Errors = append(result.Errors, ReadError{Filename: entry.Name(), Err: err})
			continue
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			result.Errors = append(result.Errors, ReadError{Filename: entry.Name(), Err: err})
			continue
		}

		result.Records = append(result.Records, rec)
	}

	return result, nil
}

func (d *DirSink) runDir(runID uuid.UUID) string {
	return filepath.Join(d.storageDir, runID.String())
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	// 0600: owner-only read/write
	return os.WriteFile(path, data, 0o600)
}

// fileName maps a record to its file. The zero-padded position keeps
// directory order equal to discovery order, and the hex-encoded id keeps
// names distinct from each other and from summary.json.
func fileName(index int, id string) string {
	return fmt.Sprintf("%08d-%s.json", index, hex.EncodeToString([]byte(id)))
}
