// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyst implements the research step for every analyst kind.
//
// There is one runner, Researcher, driven by a per-kind Spec: a prompt
// template, an overview query for first-party content and an optional
// pre-search hook. External work goes through the collaborator interfaces
// below so the runner can be tested with fakes.
package analyst

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

// QueryGenerator derives search queries from a rendered analyst prompt.
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, company types.Company, prompt string) ([]string, error)
}

// DocumentSearcher resolves queries to documents keyed by source URL. An
// empty result is not an error.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, company types.Company, queries []string) (types.Dataset, error)
}

// TickerResolver finds the exchange symbol for a company name.
type TickerResolver interface {
	LookupSymbol(ctx context.Context, company string) (string, error)
}

// MetricsFetcher returns market valuation metrics for a symbol.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, symbol string) (types.ValuationMetrics, error)
}

// Analyst produces the raw dataset for one kind. Run returns an error only
// when no usable dataset could be produced; an empty dataset is a success.
type Analyst interface {
	Kind() types.AnalystKind
	Run(ctx context.Context, v *state.View) (types.Dataset, error)
}

// Collaborators bundles the external capabilities analysts may consult.
// Queries and Search are required; Tickers and Metrics are optional and
// only used by the valuation hook.
type Collaborators struct {
	Queries QueryGenerator
	Search  DocumentSearcher
	Tickers TickerResolver
	Metrics MetricsFetcher
	Logger  *zap.Logger
}

// Researcher is the single Analyst implementation, configured by a Spec.
type Researcher struct {
	spec   Spec
	tmpl   *template.Template
	collab Collaborators
	logger *zap.Logger
}

// New builds a Researcher for spec.
func New(spec Spec, c Collaborators) (*Researcher, error) {
	if !spec.Kind.Valid() {
		return nil, eris.Errorf("unknown analyst kind %q", spec.Kind)
	}
	if c.Queries == nil || c.Search == nil {
		return nil, eris.New("analyst requires a query generator and a document searcher")
	}
	tmpl, err := template.New(string(spec.Kind)).Parse(spec.Prompt)
	if err != nil {
		return nil, eris.Wrapf(err, "parsing %s prompt", spec.Kind)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Researcher{
		spec:   spec,
		tmpl:   tmpl,
		collab: c,
		logger: logger.With(zap.String("analyst", string(spec.Kind))),
	}, nil
}

// NewSet builds analysts for kinds in the order given. An empty list
// selects every kind.
func NewSet(kinds []types.AnalystKind, c Collaborators) ([]Analyst, error) {
	if len(kinds) == 0 {
		kinds = types.Kinds[:]
	}
	seen := make(map[types.AnalystKind]bool, len(kinds))
	out := make([]Analyst, 0, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			return nil, eris.Errorf("analyst kind %q listed twice", k)
		}
		seen[k] = true
		spec, ok := SpecFor(k)
		if !ok {
			return nil, eris.Errorf("no analyst spec for kind %q", k)
		}
		a, err := New(spec, c)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Kind returns the analyst kind.
func (r *Researcher) Kind() types.AnalystKind { return r.spec.Kind }

// promptData is the template input for analyst prompts.
type promptData struct {
	Company    string
	Industry   string
	HQLocation string
	URL        string
	Context    string
}

// Run executes the research procedure for one job.
func (r *Researcher) Run(ctx context.Context, v *state.View) (types.Dataset, error) {
	company := v.Company()

	var prep Preparation
	if r.spec.PreSearch != nil {
		var err error
		prep, err = r.spec.PreSearch(ctx, v, r.collab)
		if err != nil {
			return nil, eris.Wrapf(err, "%s pre-search", r.spec.Kind)
		}
	}

	prompt, err := r.renderPrompt(company, prep.Context)
	if err != nil {
		return nil, err
	}
	queries, err := r.collab.Queries.GenerateQueries(ctx, company, prompt)
	if err != nil {
		return nil, eris.Wrapf(err, "generating %s queries", r.spec.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "research cancelled after query generation")
	}

	v.Note(subqueriesMessage(r.spec.Title, queries))
	v.Publish(types.StatusProcessing, capitalize(r.spec.Title)+" queries generated",
		types.StatusResult{Queries: queries})

	dataset := types.Dataset{}
	if scrape := v.SiteScrape(); scrape != "" {
		key := company.URL
		if key == "" {
			key = "company-website"
		}
		dataset.AddFirst(key, types.Document{
			Title:      company.Name,
			RawContent: scrape,
			Query:      fmt.Sprintf(r.spec.OverviewQuery, company.Name),
		})
	}
	for _, seed := range prep.Seeds {
		dataset.AddFirst(seed.URL, seed.Document)
	}

	failures := 0
	var lastErr error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "research cancelled during search")
		}
		docs, err := r.collab.Search.SearchDocuments(ctx, company, []string{q})
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "research cancelled during search")
			}
			failures++
			lastErr = err
			r.logger.Warn("search failed", zap.String("job_id", v.JobID()), zap.String("query", q), zap.Error(err))
			v.Note(fmt.Sprintf("Search failed for %q: %v", q, err))
			continue
		}
		for _, url := range docs.URLs() {
			doc := docs[url]
			doc.Query = q
			dataset.AddFirst(url, doc)
		}
	}
	if len(queries) > 0 && failures == len(queries) {
		return nil, eris.Wrapf(lastErr, "all %d %s searches failed", failures, r.spec.Kind)
	}

	n := len(dataset)
	v.Publish(types.StatusProcessing, fmt.Sprintf("Found %d documents for %s", n, r.spec.Title),
		types.StatusResult{Step: "Searching", Queries: queries}.WithDocuments(n))
	v.Note(fmt.Sprintf("Completed %s with %d documents", r.spec.Title, n))
	r.logger.Debug("research complete", zap.String("job_id", v.JobID()), zap.Int("documents", n))
	return dataset, nil
}

func (r *Researcher) renderPrompt(company types.Company, extra string) (string, error) {
	var b strings.Builder
	err := r.tmpl.Execute(&b, promptData{
		Company:    company.Name,
		Industry:   company.Industry,
		HQLocation: company.HQLocation,
		URL:        company.URL,
		Context:    extra,
	})
	if err != nil {
		return "", eris.Wrapf(err, "rendering %s prompt", r.spec.Kind)
	}
	return strings.TrimSpace(b.String()), nil
}

func subqueriesMessage(title string, queries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subqueries for %s:", title)
	for _, q := range queries {
		fmt.Fprintf(&b, "\n- %s", q)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
