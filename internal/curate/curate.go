// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package curate ranks and filters raw analyst datasets before briefing.
package curate

import (
	"context"

	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	defaultMinScore     = 0.4
	defaultMaxDocuments = 30
)

// ScoreCurator keeps the highest-scoring documents of a dataset. Documents
// with a zero score are first-party content (site scrapes) and always kept.
type ScoreCurator struct {
	MinScore     float64
	MaxDocuments int
}

// New builds a ScoreCurator from cfg, filling defaults for zero values.
func New(cfg types.CurationConfig) *ScoreCurator {
	c := &ScoreCurator{MinScore: cfg.MinScore, MaxDocuments: cfg.MaxDocuments}
	if c.MinScore <= 0 {
		c.MinScore = defaultMinScore
	}
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = defaultMaxDocuments
	}
	return c
}

// Curate returns the subset of raw worth briefing. raw is not modified.
func (c *ScoreCurator) Curate(ctx context.Context, _ types.AnalystKind, raw types.Dataset, _ types.Company) (types.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(types.Dataset, len(raw))
	for _, d := range raw.Ranked() {
		if len(out) == c.MaxDocuments {
			break
		}
		if d.Score != 0 && d.Score < c.MinScore {
			continue
		}
		out[d.URL] = d.Document
	}
	return out, nil
}
