// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/equity-research/internal/secrets"
	"github.com/pdiddy/equity-research/pkg/types"
)

// setDefaults registers every config key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "equity-research/"+version)
	v.SetDefault("http.max_retries", 3)

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.search_depth", "basic")
	v.SetDefault("search.include_raw_content", true)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.max_queries", 4)
	v.SetDefault("ai.max_doc_chars", 4000)

	v.SetDefault("pipeline.max_concurrency", 6)
	v.SetDefault("pipeline.job_timeout", "10m")
	v.SetDefault("pipeline.analysts", []string{})

	v.SetDefault("curation.min_score", 0.4)
	v.SetDefault("curation.max_documents", 30)

	v.SetDefault("compile.max_references", 10)

	v.SetDefault("status.queue_size", 64)
	v.SetDefault("status.enqueue_timeout", "2s")
	v.SetDefault("status.send_timeout", "5s")

	v.SetDefault("scrape.enabled", false)
	v.SetDefault("scrape.max_chars", 20000)

	v.SetDefault("store.path", ".equity-research/jobs.db")
	v.SetDefault("store.export_dir", "reports")
	v.SetDefault("store.max_results", 20)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.history_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// The vendors' own variable names work too.
	v.BindEnv("ai.api_key", "EQUITY_RESEARCH_AI_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("search.api_key", "EQUITY_RESEARCH_SEARCH_API_KEY", "TAVILY_API_KEY")
}

// loadConfig decodes viper into a Config and fills API keys from the
// secrets directory.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	keys, err := secrets.Load(v.GetString("secrets_dir"), logger)
	if err != nil {
		return cfg, err
	}
	secrets.Apply(&cfg, keys)
	return cfg, nil
}

// analystKinds parses the configured analyst list.
func analystKinds(cfg types.PipelineConfig) ([]types.AnalystKind, error) {
	var kinds []types.AnalystKind
	for _, s := range cfg.Analysts {
		k, err := types.ParseKind(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q: use json or console", format)
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}
