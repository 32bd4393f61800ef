// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Yahoo {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	old := quoteURL
	quoteURL = ts.URL
	t.Cleanup(func() {
		quoteURL = old
		ts.Close()
	})
	return &Yahoo{HTTP: ts.Client(), MaxRetries: 1}
}

func TestFetchMetrics(t *testing.T) {
	y := serve(t, http.StatusOK, `{"quoteResponse":{"result":[{
		"symbol":"AAPL","trailingPE":29.5,"forwardPE":27.1,
		"epsTrailingTwelveMonths":6.43,"marketCap":2950000000000,"priceToBook":45.2}],"error":null}}`)

	m, err := y.FetchMetrics(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", m.Ticker)
	require.NotNil(t, m.PERatio)
	assert.InDelta(t, 29.5, *m.PERatio, 1e-9)
	require.NotNil(t, m.MarketCap)
	assert.InDelta(t, 2.95e12, *m.MarketCap, 1)
	assert.Nil(t, m.Beta)
	assert.Nil(t, m.EstimatedDCF)
	assert.Contains(t, m.Summary(), "* Beta: N/A")
}

func TestFetchMetrics_NoResult(t *testing.T) {
	y := serve(t, http.StatusOK, `{"quoteResponse":{"result":[],"error":null}}`)
	_, err := y.FetchMetrics(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestFetchMetrics_APIError(t *testing.T) {
	y := serve(t, http.StatusOK, `{"quoteResponse":{"result":null,"error":{"code":"Bad Request","description":"Missing value"}}}`)
	_, err := y.FetchMetrics(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing value")
}

func TestFetchMetrics_HTTPError(t *testing.T) {
	y := serve(t, http.StatusNotFound, `not found`)
	_, err := y.FetchMetrics(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchMetrics_EmptySymbol(t *testing.T) {
	_, err := (&Yahoo{}).FetchMetrics(context.Background(), " ")
	assert.Error(t, err)
}
