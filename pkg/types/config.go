// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every network collaborator.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "equity-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on 429 and 5xx responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig holds settings for the web search collaborator.
type SearchConfig struct {
	// APIKey authenticates against the search API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxResults is the number of documents requested per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// SearchDepth is "basic" or "advanced".
	SearchDepth string `json:"search_depth" yaml:"search_depth" mapstructure:"search_depth"`

	// IncludeRawContent asks the API for full page text.
	IncludeRawContent bool `json:"include_raw_content" yaml:"include_raw_content" mapstructure:"include_raw_content"`
}

// AIConfig holds settings for the LLM-backed collaborators (query
// generation and briefing).
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens caps each completion (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxQueries caps the queries generated per analyst (default 4).
	MaxQueries int `json:"max_queries" yaml:"max_queries" mapstructure:"max_queries"`

	// MaxDocChars truncates each document fed into a briefing prompt (default 4000).
	MaxDocChars int `json:"max_doc_chars" yaml:"max_doc_chars" mapstructure:"max_doc_chars"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// MaxConcurrency bounds the number of units running at once within a
	// fan-out stage (default 6, one per analyst kind).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// JobTimeout bounds the research stage of one job. Analysts still
	// running when it expires are reported failed. Zero disables it.
	JobTimeout time.Duration `json:"job_timeout" yaml:"job_timeout" mapstructure:"job_timeout"`

	// Analysts restricts the configured analyst kinds. Empty means all.
	Analysts []string `json:"analysts,omitempty" yaml:"analysts,omitempty" mapstructure:"analysts"`
}

// CurationConfig holds settings for the default score-based curator.
type CurationConfig struct {
	// MinScore drops searched documents scoring below it (default 0.4).
	MinScore float64 `json:"min_score" yaml:"min_score" mapstructure:"min_score"`

	// MaxDocuments caps each curated dataset (default 30).
	MaxDocuments int `json:"max_documents" yaml:"max_documents" mapstructure:"max_documents"`
}

// CompileConfig holds settings for report assembly.
type CompileConfig struct {
	// MaxReferences caps the reference list (default 10).
	MaxReferences int `json:"max_references" yaml:"max_references" mapstructure:"max_references"`
}

// StatusConfig holds status bus settings.
type StatusConfig struct {
	// QueueSize is the per-job event buffer (default 64).
	QueueSize int `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`

	// EnqueueTimeout bounds how long Publish waits on a full queue before
	// dropping the event (default 2s).
	EnqueueTimeout time.Duration `json:"enqueue_timeout" yaml:"enqueue_timeout" mapstructure:"enqueue_timeout"`

	// SendTimeout bounds one delivery to one sink (default 5s).
	SendTimeout time.Duration `json:"send_timeout" yaml:"send_timeout" mapstructure:"send_timeout"`
}

// ScrapeConfig holds settings for the first-party site scrape.
type ScrapeConfig struct {
	// Enabled turns on scraping of the company URL before research.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxChars truncates the extracted text (default 20000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`
}

// StoreConfig holds settings for the sqlite job store.
type StoreConfig struct {
	// Path is the sqlite database file. Empty disables persistence.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// ExportDir is where job exports are written (default "reports").
	ExportDir string `json:"export_dir" yaml:"export_dir" mapstructure:"export_dir"`

	// MaxResults is the default limit for list and search queries (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig holds settings for the HTTP/websocket server.
type ServerConfig struct {
	// Addr is the listen address (default ":8000").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// HistorySize is the number of recent events replayed to a late
	// websocket subscriber (default 100).
	HistorySize int `json:"history_size" yaml:"history_size" mapstructure:"history_size"`
}

// LogConfig selects logger output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups every setting of the equity-research binary.
type Config struct {
	HTTP     HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	AI       AIConfig       `json:"ai" yaml:"ai" mapstructure:"ai"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Curation CurationConfig `json:"curation" yaml:"curation" mapstructure:"curation"`
	Compile  CompileConfig  `json:"compile" yaml:"compile" mapstructure:"compile"`
	Status   StatusConfig   `json:"status" yaml:"status" mapstructure:"status"`
	Scrape   ScrapeConfig   `json:"scrape" yaml:"scrape" mapstructure:"scrape"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}
