// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm implements the language-model collaborators of the pipeline:
// query generation for analysts and briefing synthesis for the orchestrator.
// Both sit on a Completer so tests can supply a mock.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/internal/httputil"
	"github.com/pdiddy/equity-research/pkg/types"
)

// Completer sends one prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// messagesURL is the Claude Messages API endpoint. Package-level var for
// test substitution.
var messagesURL = "https://api.anthropic.com/v1/messages"

const (
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// Claude calls the Claude Messages API.
type Claude struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client
}

// NewClaude builds a Claude completer from cfg.
func NewClaude(cfg types.AIConfig, httpCfg types.HTTPConfig, client *http.Client) *Claude {
	return &Claude{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxTokens:  cfg.MaxTokens,
		MaxRetries: httpCfg.MaxRetries,
		Client:     client,
	}
}

// claudeRequest is the request body for the Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the subset of the Messages API response we read.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends prompt as a single user message and returns the text
// blocks of the reply joined together.
func (c *Claude) Complete(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", eris.New("Claude API key is not configured")
	}
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "marshaling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return "", eris.Wrap(err, "calling Claude API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", eris.Errorf("Claude API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", eris.Wrap(err, "decoding Claude response")
	}

	var parts []string
	for _, block := range cResp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", eris.New("no text content in Claude API response")
	}
	return strings.Join(parts, "\n"), nil
}
