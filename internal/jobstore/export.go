// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/equity-research/pkg/types"
)

// Export is the full dump of one job.
type Export struct {
	Job       *JobRecord          `json:"job" yaml:"job"`
	Documents []DocumentHit       `json:"documents" yaml:"documents"`
	Events    []types.StatusEvent `json:"events" yaml:"-"`
}

const exportLimit = 100000

// ExportYAML writes jobID to <export_dir>/<jobID>.yaml and returns the path.
// Status events are left out of the YAML form.
func (s *Store) ExportYAML(ctx context.Context, jobID string) (string, error) {
	exp, err := s.export(ctx, jobID)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return s.writeExport(jobID+".yaml", data)
}

// ExportJSON writes jobID to <export_dir>/<jobID>.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context, jobID string) (string, error) {
	exp, err := s.export(ctx, jobID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return s.writeExport(jobID+".json", data)
}

func (s *Store) export(ctx context.Context, jobID string) (*Export, error) {
	job, err := s.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	docs, err := s.SearchDocuments(ctx, DocumentQuery{JobID: jobID, MaxResults: exportLimit})
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	events, err := s.Events(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	return &Export{Job: job, Documents: docs, Events: events}, nil
}

func (s *Store) writeExport(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(s.exportDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
