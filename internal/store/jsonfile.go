package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kagami-ai/kagami/internal/model"
)

// JSONFile persists the full decision log as one pretty-printed JSON file.
// Load-all/save-all semantics: every Save rewrites the whole file. This is
// deliberate — the log is a human-scale personal history and the file is
// meant to be readable and greppable by its owner.
type JSONFile struct {
	path string
}

// NewJSONFile creates a persister writing to path. The parent directory is
// created on first save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Load reads all records. A missing file is an empty log.
func (f *JSONFile) Load(ctx context.Context) ([]model.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	var records []model.DecisionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return records, nil
}

// Save writes all records. The write goes to a temp file first and is
// renamed into place so a crash mid-write never truncates the log.
func (f *JSONFile) Save(ctx context.Context, records []model.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
