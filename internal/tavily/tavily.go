// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tavily searches the web through the Tavily API. The client serves
// as the analysts' document searcher and as the valuation ticker resolver.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/internal/httputil"
	"github.com/pdiddy/equity-research/pkg/types"
)

// searchURL is the Tavily search endpoint. Package-level var for test
// substitution.
var searchURL = "https://api.tavily.com/search"

const (
	defaultMaxResults  = 5
	defaultSearchDepth = "basic"
)

// Client calls the Tavily search API.
type Client struct {
	APIKey            string
	MaxResults        int
	SearchDepth       string
	IncludeRawContent bool
	MaxRetries        int
	HTTP              *http.Client
}

// New builds a Client from cfg.
func New(cfg types.SearchConfig, httpCfg types.HTTPConfig, client *http.Client) *Client {
	return &Client{
		APIKey:            cfg.APIKey,
		MaxResults:        cfg.MaxResults,
		SearchDepth:       cfg.SearchDepth,
		IncludeRawContent: cfg.IncludeRawContent,
		MaxRetries:        httpCfg.MaxRetries,
		HTTP:              client,
	}
}

type searchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

// SearchDocuments runs each query and merges the results by URL. A URL
// returned by more than one query keeps the first query's document.
func (c *Client) SearchDocuments(ctx context.Context, _ types.Company, queries []string) (types.Dataset, error) {
	out := types.Dataset{}
	for _, q := range queries {
		results, err := c.search(ctx, q, c.SearchDepth, c.MaxResults, c.IncludeRawContent)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			content := r.RawContent
			if content == "" {
				content = r.Content
			}
			out.AddFirst(r.URL, types.Document{
				Title:      r.Title,
				RawContent: content,
				Query:      q,
				Score:      r.Score,
			})
		}
	}
	return out, nil
}

// LookupSymbol searches Yahoo Finance quote pages for the company and
// returns the symbol from the first /quote/ URL.
func (c *Client) LookupSymbol(ctx context.Context, company string) (string, error) {
	query := fmt.Sprintf("%s stock ticker site:finance.yahoo.com", company)
	results, err := c.search(ctx, query, defaultSearchDepth, 3, false)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if sym, ok := symbolFromQuoteURL(r.URL); ok {
			return sym, nil
		}
	}
	return "", eris.Errorf("no Yahoo Finance quote page found for %q", company)
}

// symbolFromQuoteURL extracts "AAPL" from
// https://finance.yahoo.com/quote/AAPL/?p=AAPL.
func symbolFromQuoteURL(u string) (string, bool) {
	_, rest, ok := strings.Cut(u, "finance.yahoo.com/quote/")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return strings.ToUpper(rest), true
}

func (c *Client) search(ctx context.Context, query, depth string, maxResults int, raw bool) ([]searchResult, error) {
	if c.APIKey == "" {
		return nil, eris.New("Tavily API key is not configured")
	}
	if depth == "" {
		depth = defaultSearchDepth
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	body, err := json.Marshal(searchRequest{
		Query:             query,
		SearchDepth:       depth,
		MaxResults:        maxResults,
		IncludeRawContent: raw,
	})
	if err != nil {
		return nil, eris.Wrap(err, "marshaling search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return nil, eris.Wrapf(err, "searching %q", query)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, eris.Errorf("Tavily returned %d for %q: %s", resp.StatusCode, query, strings.TrimSpace(string(msg)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, eris.Wrap(err, "decoding search response")
	}
	return sr.Results, nil
}
