package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semmigrate/source"
)

// Failure is one record that could not be uploaded.
type Failure struct {
	Index  int            `json:"index"`
	Key    string         `json:"key,omitempty"`
	Error  string         `json:"error"`
	Record *source.Record `json:"record"`
}

// Artifact is the persisted error set of a run.
type Artifact struct {
	RunID          string    `json:"run_id"`
	WrittenAt      time.Time `json:"written_at"`
	// KeyPath and ExistsTemplate are the options the records were keyed
	// with, so a retry checks them the same way.
	KeyPath        string    `json:"key_path,omitempty"`
	ExistsTemplate string    `json:"exists_template,omitempty"`
	Complete       bool      `json:"complete"`
	Failures       []Failure `json:"failures"`
}

// Options returns base with the artifact's key settings applied.
func (a *Artifact) Options(base Options) Options {
	if a.KeyPath != "" {
		base.KeyPath = a.KeyPath
		base.ExistsTemplate = a.ExistsTemplate
	}
	return base
}

// Records returns the failed records in failure order.
func (a *Artifact) Records() []*source.Record {
	out := make([]*source.Record, 0, len(a.Failures))
	for _, f := range a.Failures {
		if f.Record != nil {
			out = append(out, f.Record)
		}
	}
	return out
}

// Iterator iterates over the failed records for a retry run.
func (a *Artifact) Iterator() source.Iterator {
	return source.NewSliceIterator(a.Records())
}

// WriteArtifact replaces path with a. The file is written next to path and
// renamed into place so readers never see a partial artifact.
func WriteArtifact(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal error artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// LoadErrorArtifact reads an artifact written by a previous run.
func LoadErrorArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read error artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse error artifact %s: %w", path, err)
	}
	return &a, nil
}
