// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyst

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

type fakeQueries struct {
	queries []string
	err     error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeQueries) GenerateQueries(_ context.Context, _ types.Company, prompt string) ([]string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.queries, f.err
}

type fakeSearch struct {
	results map[string]types.Dataset
	errs    map[string]error
}

func (f *fakeSearch) SearchDocuments(_ context.Context, _ types.Company, queries []string) (types.Dataset, error) {
	out := types.Dataset{}
	for _, q := range queries {
		if err := f.errs[q]; err != nil {
			return nil, err
		}
		for u, d := range f.results[q] {
			out[u] = d
		}
	}
	return out, nil
}

type fakeTickers struct {
	symbol string
	err    error
}

func (f fakeTickers) LookupSymbol(context.Context, string) (string, error) { return f.symbol, f.err }

type fakeMetrics struct {
	metrics types.ValuationMetrics
	err     error
	got     string
}

func (f *fakeMetrics) FetchMetrics(_ context.Context, symbol string) (types.ValuationMetrics, error) {
	f.got = symbol
	return f.metrics, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

func (p *recordingPublisher) Publish(jobID string, status types.JobStatus, message string, result types.StatusResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, types.StatusEvent{JobID: jobID, Status: status, Message: message, Result: result})
}

func newView(t *testing.T, k types.AnalystKind, company types.Company, scrape string, pub *recordingPublisher) (*state.ResearchState, *state.View) {
	t.Helper()
	in := state.Input{Company: company, JobID: "job-1", SiteScrape: scrape}
	if pub != nil {
		in.Publisher = pub
	}
	st, err := state.New(in)
	require.NoError(t, err)
	return st, st.View(k)
}

func mustResearcher(t *testing.T, k types.AnalystKind, c Collaborators) *Researcher {
	t.Helper()
	spec, ok := SpecFor(k)
	require.True(t, ok)
	r, err := New(spec, c)
	require.NoError(t, err)
	return r
}

func TestRun_FirstWriterWins(t *testing.T) {
	q := &fakeQueries{queries: []string{"q1", "q2"}}
	s := &fakeSearch{results: map[string]types.Dataset{
		"q1": {"https://shared": {Title: "from q1", Score: 0.4}},
		"q2": {"https://shared": {Title: "from q2", Score: 0.9}, "https://other": {Title: "other"}},
	}}
	r := mustResearcher(t, types.KindNews, Collaborators{Queries: q, Search: s})
	_, v := newView(t, types.KindNews, types.Company{Name: "Acme Corp"}, "", nil)

	ds, err := r.Run(context.Background(), v)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "q1", ds["https://shared"].Query)
	assert.Equal(t, "from q1", ds["https://shared"].Title)
	assert.Equal(t, "q2", ds["https://other"].Query)
}

func TestRun_SeedsSiteScrape(t *testing.T) {
	q := &fakeQueries{queries: []string{"q1"}}
	s := &fakeSearch{results: map[string]types.Dataset{
		"q1": {"https://a": {Title: "A"}, "https://b": {Title: "B"}},
	}}
	r := mustResearcher(t, types.KindFundamental, Collaborators{Queries: q, Search: s})

	company := types.Company{Name: "Acme Corp", Industry: "Manufacturing", URL: "https://acme.example"}
	_, v := newView(t, types.KindFundamental, company, "Acme builds widgets.", nil)

	ds, err := r.Run(context.Background(), v)
	require.NoError(t, err)
	require.Len(t, ds, 3)
	seed := ds["https://acme.example"]
	assert.Equal(t, "Acme Corp", seed.Title)
	assert.Equal(t, "Acme builds widgets.", seed.RawContent)
	assert.Equal(t, "Overview and qualitative information about Acme Corp", seed.Query)

	require.Len(t, q.prompts, 1)
	assert.Contains(t, q.prompts[0], "Acme Corp in the Manufacturing industry")
}

func TestRun_SeedWithoutURLUsesPlaceholderKey(t *testing.T) {
	q := &fakeQueries{}
	r := mustResearcher(t, types.KindCompany, Collaborators{Queries: q, Search: &fakeSearch{}})
	_, v := newView(t, types.KindCompany, types.Company{Name: "Acme"}, "about us", nil)

	ds, err := r.Run(context.Background(), v)
	require.NoError(t, err)
	assert.Contains(t, ds, "company-website")
}

func TestRun_EmptyResultIsSuccess(t *testing.T) {
	q := &fakeQueries{queries: []string{"q1"}}
	r := mustResearcher(t, types.KindIndustry, Collaborators{Queries: q, Search: &fakeSearch{}})
	_, v := newView(t, types.KindIndustry, types.Company{Name: "Acme"}, "", nil)

	ds, err := r.Run(context.Background(), v)
	require.NoError(t, err)
	assert.NotNil(t, ds)
	assert.Empty(t, ds)
}

func TestRun_QueryGenerationFailure(t *testing.T) {
	q := &fakeQueries{err: errors.New("llm unavailable")}
	r := mustResearcher(t, types.KindFinancial, Collaborators{Queries: q, Search: &fakeSearch{}})
	_, v := newView(t, types.KindFinancial, types.Company{Name: "Acme"}, "scrape", nil)

	ds, err := r.Run(context.Background(), v)
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Contains(t, err.Error(), "llm unavailable")
}

func TestRun_PartialSearchFailureKeepsOthers(t *testing.T) {
	q := &fakeQueries{queries: []string{"bad", "good"}}
	s := &fakeSearch{
		results: map[string]types.Dataset{"good": {"https://g": {Title: "G"}}},
		errs:    map[string]error{"bad": errors.New("429")},
	}
	r := mustResearcher(t, types.KindNews, Collaborators{Queries: q, Search: s})
	st, v := newView(t, types.KindNews, types.Company{Name: "Acme"}, "", nil)

	ds, err := r.Run(context.Background(), v)
	require.NoError(t, err)
	assert.Len(t, ds, 1)

	var noted bool
	for _, m := range st.Transcript().Messages() {
		if strings.Contains(m, `Search failed for "bad"`) {
			noted = true
		}
	}
	assert.True(t, noted)
}

func TestRun_AllSearchesFail(t *testing.T) {
	q := &fakeQueries{queries: []string{"a", "b"}}
	s := &fakeSearch{errs: map[string]error{"a": errors.New("down"), "b": errors.New("down")}}
	r := mustResearcher(t, types.KindNews, Collaborators{Queries: q, Search: s})
	_, v := newView(t, types.KindNews, types.Company{Name: "Acme"}, "scrape text", nil)

	_, err := r.Run(context.Background(), v)
	assert.Error(t, err)
}

func TestRun_CancelledContext(t *testing.T) {
	q := &fakeQueries{queries: []string{"q1"}}
	r := mustResearcher(t, types.KindNews, Collaborators{Queries: q, Search: &fakeSearch{}})
	_, v := newView(t, types.KindNews, types.Company{Name: "Acme"}, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, v)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_PublishesQueriesThenCount(t *testing.T) {
	pub := &recordingPublisher{}
	q := &fakeQueries{queries: []string{"q1"}}
	s := &fakeSearch{results: map[string]types.Dataset{"q1": {"https://a": {}}}}
	r := mustResearcher(t, types.KindFundamental, Collaborators{Queries: q, Search: s})
	st, v := newView(t, types.KindFundamental, types.Company{Name: "Acme"}, "", pub)

	_, err := r.Run(context.Background(), v)
	require.NoError(t, err)

	require.Len(t, pub.events, 2)
	first, second := pub.events[0], pub.events[1]
	assert.Equal(t, "Fundamental analysis queries generated", first.Message)
	assert.Equal(t, "Fundamental Analyst", first.Result.Step)
	assert.Equal(t, "fundamental", first.Result.AnalystType)
	assert.Equal(t, []string{"q1"}, first.Result.Queries)
	assert.Equal(t, "Searching", second.Result.Step)
	require.NotNil(t, second.Result.DocumentsFound)
	assert.Equal(t, 1, *second.Result.DocumentsFound)

	msgs := st.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Subqueries for fundamental analysis:\n- q1", msgs[0])
	assert.Equal(t, "Completed fundamental analysis with 1 documents", msgs[1])
}

func TestRun_DeterministicKeySets(t *testing.T) {
	q := &fakeQueries{queries: []string{"q1", "q2"}}
	s := &fakeSearch{results: map[string]types.Dataset{
		"q1": {"https://a": {}, "https://b": {}},
		"q2": {"https://b": {}, "https://c": {}},
	}}
	for _, k := range types.Kinds {
		c := Collaborators{Queries: q, Search: s, Tickers: fakeTickers{symbol: "ACME"}, Metrics: &fakeMetrics{}}
		r := mustResearcher(t, k, c)

		_, v1 := newView(t, k, types.Company{Name: "Acme"}, "site", nil)
		_, v2 := newView(t, k, types.Company{Name: "Acme"}, "site", nil)
		d1, err := r.Run(context.Background(), v1)
		require.NoError(t, err)
		d2, err := r.Run(context.Background(), v2)
		require.NoError(t, err)
		if diff := cmp.Diff(d1.URLs(), d2.URLs()); diff != "" {
			t.Errorf("%s key sets differ (-first +second):\n%s", k, diff)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Spec{Kind: "macro"}, Collaborators{Queries: &fakeQueries{}, Search: &fakeSearch{}})
	assert.Error(t, err)

	spec, _ := SpecFor(types.KindNews)
	_, err = New(spec, Collaborators{})
	assert.Error(t, err)

	spec.Prompt = "{{.Company"
	_, err = New(spec, Collaborators{Queries: &fakeQueries{}, Search: &fakeSearch{}})
	assert.Error(t, err)
}

func TestNewSet(t *testing.T) {
	c := Collaborators{Queries: &fakeQueries{}, Search: &fakeSearch{}}
	all, err := NewSet(nil, c)
	require.NoError(t, err)
	require.Len(t, all, types.NumKinds)
	for i, a := range all {
		assert.Equal(t, types.Kinds[i], a.Kind())
	}

	_, err = NewSet([]types.AnalystKind{types.KindNews, types.KindNews}, c)
	assert.Error(t, err)
}

func TestSpecs_AllKindsRender(t *testing.T) {
	for _, k := range types.Kinds {
		r := mustResearcher(t, k, Collaborators{Queries: &fakeQueries{}, Search: &fakeSearch{}})
		p, err := r.renderPrompt(types.Company{Name: "Acme Corp"}, "")
		require.NoError(t, err, k)
		assert.Contains(t, p, "Acme Corp", k)
		assert.NotContains(t, p, "<no value>", k)
	}
}
