// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyst

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

// quoteURLPrefix is where the seeded valuation summary is attributed.
const quoteURLPrefix = "https://finance.yahoo.com/quote/"

// valuationPreSearch resolves the ticker, fetches market metrics and seeds
// a summary document. Lookup and fetch failures fall back to the company
// name and N/A metrics; only cancellation fails the analyst.
func valuationPreSearch(ctx context.Context, v *state.View, c Collaborators) (Preparation, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	company := v.Company()

	v.Publish(types.StatusProcessing, fmt.Sprintf("Looking up ticker symbol for %s...", company.Name), types.StatusResult{})
	ticker := lookupSymbol(ctx, company, c.Tickers, logger)
	if err := ctx.Err(); err != nil {
		return Preparation{}, eris.Wrap(err, "ticker lookup cancelled")
	}

	v.Publish(types.StatusProcessing, fmt.Sprintf("Fetching valuation data for %s...", ticker), types.StatusResult{})
	metrics := types.ValuationMetrics{Ticker: ticker}
	if c.Metrics != nil {
		m, err := c.Metrics.FetchMetrics(ctx, ticker)
		switch {
		case ctx.Err() != nil:
			return Preparation{}, eris.Wrap(ctx.Err(), "metrics fetch cancelled")
		case err != nil:
			logger.Warn("metrics unavailable", zap.String("ticker", ticker), zap.Error(err))
			v.Note(fmt.Sprintf("Valuation metrics unavailable for %s: %v", ticker, err))
		default:
			metrics = m
			metrics.Ticker = ticker
		}
	}

	summary := metrics.Summary()
	v.Note(summary)
	v.Publish(types.StatusProcessing, "Valuation data fetched", types.StatusResult{
		Fields: map[string]any{"valuation_data": metrics},
	})

	return Preparation{
		Context: summary,
		Seeds: []types.RankedDocument{{
			URL: quoteURLPrefix + url.PathEscape(ticker),
			Document: types.Document{
				Title:      "Valuation Summary for " + ticker,
				RawContent: summary,
				Query:      "Valuation data for " + ticker,
				Score:      1.0,
			},
		}},
	}, nil
}

// lookupSymbol returns the company's ticker: the explicit hint, else the
// resolver's answer, else the company name itself.
func lookupSymbol(ctx context.Context, company types.Company, r TickerResolver, logger *zap.Logger) string {
	if t := strings.TrimSpace(company.Ticker); t != "" {
		return strings.ToUpper(t)
	}
	if r == nil {
		return company.Name
	}
	sym, err := r.LookupSymbol(ctx, company.Name)
	if err != nil {
		logger.Warn("ticker lookup failed, using company name", zap.String("company", company.Name), zap.Error(err))
		return company.Name
	}
	if sym = strings.TrimSpace(sym); sym == "" {
		return company.Name
	}
	return sym
}
