// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research runs one research job end to end: optional site scrape,
// record creation, the orchestrated stage chain and persistence of the
// finished record. The CLI and the server both drive jobs through it.
package research

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/orchestrator"
	"github.com/pdiddy/equity-research/internal/scrape"
	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/internal/statusbus"
	"github.com/pdiddy/equity-research/pkg/types"
)

// Store persists jobs. *jobstore.Store satisfies it.
type Store interface {
	CreateJob(ctx context.Context, jobID string, c types.Company) error
	SaveResult(ctx context.Context, st *state.ResearchState) error
}

// Scraper fetches the company's own website.
type Scraper interface {
	Fetch(ctx context.Context, url string) (scrape.Page, error)
}

// Runner executes the stage chain on a record.
type Runner interface {
	Run(ctx context.Context, st *state.ResearchState) (*orchestrator.Result, error)
}

// Service runs jobs. Store, Scraper and Publisher are optional.
type Service struct {
	Runner    Runner
	Publisher statusbus.Publisher
	Store     Store
	Scraper   Scraper
	Logger    *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) publisher() statusbus.Publisher {
	if s.Publisher == nil {
		return statusbus.Discard
	}
	return s.Publisher
}

// Submit registers a job and publishes its queued event.
func (s *Service) Submit(ctx context.Context, jobID string, c types.Company) error {
	if c.Name == "" {
		return eris.New("company name is required")
	}
	if s.Store != nil {
		if err := s.Store.CreateJob(ctx, jobID, c); err != nil {
			return eris.Wrap(err, "registering job")
		}
	}
	s.publisher().Publish(jobID, types.StatusQueued, "Research queued for "+c.Name,
		types.StatusResult{Step: "Queued", Fields: map[string]any{"company": c.Name}})
	return nil
}

// Run researches c under jobID. The finished record is saved whether the
// job completed or failed; a save error is logged, not returned.
func (s *Service) Run(ctx context.Context, jobID string, c types.Company) (*orchestrator.Result, error) {
	logger := s.logger().With(zap.String("job_id", jobID), zap.String("company", c.Name))

	st, err := state.New(state.Input{
		Company:    c,
		JobID:      jobID,
		SiteScrape: s.siteScrape(ctx, c, logger),
		Publisher:  s.Publisher,
	})
	if err != nil {
		return nil, eris.Wrap(err, "creating research state")
	}

	res, runErr := s.Runner.Run(ctx, st)

	if s.Store != nil {
		if err := s.Store.SaveResult(context.WithoutCancel(ctx), st); err != nil {
			logger.Warn("saving job result failed", zap.Error(err))
		}
	}

	var jerr *orchestrator.JobError
	switch {
	case errors.As(runErr, &jerr):
		return nil, runErr
	case runErr != nil:
		return nil, eris.Wrapf(runErr, "running job %s", jobID)
	}
	return res, nil
}

func (s *Service) siteScrape(ctx context.Context, c types.Company, logger *zap.Logger) string {
	if s.Scraper == nil || c.URL == "" {
		return ""
	}
	page, err := s.Scraper.Fetch(ctx, c.URL)
	if err != nil {
		logger.Warn("site scrape failed, continuing without it", zap.String("url", c.URL), zap.Error(err))
		return ""
	}
	logger.Debug("site scraped", zap.String("url", c.URL), zap.Int("chars", len(page.Text)))
	return page.Content()
}
