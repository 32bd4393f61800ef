// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/analyst"
	"github.com/pdiddy/equity-research/internal/curate"
	"github.com/pdiddy/equity-research/internal/httputil"
	"github.com/pdiddy/equity-research/internal/jobstore"
	"github.com/pdiddy/equity-research/internal/llm"
	"github.com/pdiddy/equity-research/internal/orchestrator"
	"github.com/pdiddy/equity-research/internal/quote"
	"github.com/pdiddy/equity-research/internal/research"
	"github.com/pdiddy/equity-research/internal/scrape"
	"github.com/pdiddy/equity-research/internal/statusbus"
	"github.com/pdiddy/equity-research/internal/tavily"
	"github.com/pdiddy/equity-research/pkg/types"
)

// app holds the wired pipeline shared by research and serve.
type app struct {
	cfg     types.Config
	bus     *statusbus.Bus
	store   *jobstore.Store
	service *research.Service
}

// newApp wires every collaborator from cfg. Extra sinks receive status
// events next to the log and the store.
func newApp(cfg types.Config, sinks ...statusbus.Sink) (*app, error) {
	if cfg.AI.APIKey == "" {
		return nil, errors.New("anthropic API key is required: set ai.api_key, ANTHROPIC_API_KEY or .secrets/anthropic-api-key")
	}
	if cfg.Search.APIKey == "" {
		return nil, errors.New("tavily API key is required: set search.api_key, TAVILY_API_KEY or .secrets/tavily-api-key")
	}

	client := httputil.NewClient(cfg.HTTP)
	claude := llm.NewClaude(cfg.AI, cfg.HTTP, client)
	search := tavily.New(cfg.Search, cfg.HTTP, client)

	kinds, err := analystKinds(cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	analysts, err := analyst.NewSet(kinds, analyst.Collaborators{
		Queries: &llm.QueryWriter{LLM: claude, MaxQueries: cfg.AI.MaxQueries},
		Search:  search,
		Tickers: search,
		Metrics: &quote.Yahoo{MaxRetries: cfg.HTTP.MaxRetries, HTTP: client},
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	all := []statusbus.Sink{statusbus.LogSink{Logger: logger.Named("status")}}
	if cfg.Store.Path != "" {
		if a.store, err = jobstore.Open(cfg.Store); err != nil {
			return nil, err
		}
		all = append(all, a.store)
	}
	all = append(all, sinks...)
	a.bus = statusbus.New(cfg.Status, logger, all...)

	opts := orchestrator.Options{
		Analysts:   analysts,
		Curator:    curate.New(cfg.Curation),
		Summarizer: &llm.Briefer{LLM: claude, MaxDocChars: cfg.AI.MaxDocChars},
		Pipeline:   cfg.Pipeline,
		Compile:    cfg.Compile,
		Bus:        a.bus,
		Logger:     logger,
	}
	if a.store != nil {
		opts.Recorder = a.store
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		a.close()
		return nil, err
	}

	a.service = &research.Service{
		Runner:    orch,
		Publisher: a.bus,
		Logger:    logger,
	}
	if a.store != nil {
		a.service.Store = a.store
	}
	if cfg.Scrape.Enabled {
		a.service.Scraper = scrape.New(cfg.Scrape, cfg.HTTP, client)
	}
	logger.Debug("pipeline wired",
		zap.Int("analysts", len(analysts)),
		zap.Bool("store", a.store != nil),
		zap.Bool("scrape", cfg.Scrape.Enabled))
	return a, nil
}

// close flushes pending status events and releases the store.
func (a *app) close() {
	a.bus.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}
}
