package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"jobharvest/internal/jobs"
)

// JSONWriter maintains a single JSON array document. Each batch reads
// the existing array, appends the new records and rewrites the file
// through a temp-file rename so a crash never leaves a torn document.
type JSONWriter struct {
	path string
}

func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

func (j *JSONWriter) Name() string { return "json" }

func (j *JSONWriter) WriteBatch(_ context.Context, batch []jobs.Record) error {
	existing, err := j.readExisting()
	if err != nil {
		return err
	}
	existing = append(existing, batch...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json document: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write json document: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace json document: %w", err)
	}
	return nil
}

func (j *JSONWriter) readExisting() ([]jobs.Record, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read json document: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []jobs.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return records, nil
}

func (j *JSONWriter) Close() error { return nil }
