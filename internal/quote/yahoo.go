// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quote fetches market valuation metrics for a ticker symbol.
package quote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/internal/httputil"
	"github.com/pdiddy/equity-research/pkg/types"
)

// quoteURL is the Yahoo Finance v7 quote endpoint. Package-level var for
// test substitution.
var quoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// Yahoo reads valuation metrics from the Yahoo Finance quote API.
type Yahoo struct {
	MaxRetries int
	HTTP       *http.Client
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// quoteResult holds the fields we map; absent values decode as nil.
type quoteResult struct {
	Symbol         string   `json:"symbol"`
	TrailingPE     *float64 `json:"trailingPE"`
	ForwardPE      *float64 `json:"forwardPE"`
	EPS            *float64 `json:"epsTrailingTwelveMonths"`
	MarketCap      *float64 `json:"marketCap"`
	DividendYield  *float64 `json:"trailingAnnualDividendYield"`
	Beta           *float64 `json:"beta"`
	PriceToBook    *float64 `json:"priceToBook"`
	ReturnOnEquity *float64 `json:"returnOnEquity"`
}

// FetchMetrics returns the metrics for symbol. Fields the API omits stay
// nil and render as N/A.
func (y *Yahoo) FetchMetrics(ctx context.Context, symbol string) (types.ValuationMetrics, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return types.ValuationMetrics{}, eris.New("empty symbol")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL+"?symbols="+url.QueryEscape(symbol), nil)
	if err != nil {
		return types.ValuationMetrics{}, eris.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")

	client := y.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, y.MaxRetries)
	if err != nil {
		return types.ValuationMetrics{}, eris.Wrapf(err, "fetching quote for %s", symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return types.ValuationMetrics{}, eris.Errorf("quote API returned %d for %s: %s", resp.StatusCode, symbol, strings.TrimSpace(string(msg)))
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return types.ValuationMetrics{}, eris.Wrap(err, "decoding quote response")
	}
	if e := qr.QuoteResponse.Error; e != nil {
		return types.ValuationMetrics{}, eris.Errorf("quote API error for %s: %s %s", symbol, e.Code, e.Description)
	}
	if len(qr.QuoteResponse.Result) == 0 {
		return types.ValuationMetrics{}, eris.Errorf("no quote for symbol %s", symbol)
	}

	r := qr.QuoteResponse.Result[0]
	return types.ValuationMetrics{
		Ticker:         symbol,
		PERatio:        r.TrailingPE,
		ForwardPE:      r.ForwardPE,
		EPS:            r.EPS,
		MarketCap:      r.MarketCap,
		DividendYield:  r.DividendYield,
		Beta:           r.Beta,
		PriceToBook:    r.PriceToBook,
		ReturnOnEquity: r.ReturnOnEquity,
	}, nil
}
