// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyst

import (
	"context"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

// Preparation is what a pre-search hook contributes: extra prompt context
// and documents seeded into the dataset before searching.
type Preparation struct {
	Context string
	Seeds   []types.RankedDocument
}

// PreSearch runs before query generation. An error is a reported failure
// for the analyst; hooks with a safe fallback should use it instead.
type PreSearch func(ctx context.Context, v *state.View, c Collaborators) (Preparation, error)

// Spec configures a Researcher for one kind.
type Spec struct {
	Kind types.AnalystKind

	// Title names the analysis in transcript and status messages.
	Title string

	// Prompt is a text/template rendered with the company identity and
	// the hook's Context.
	Prompt string

	// OverviewQuery tags the seeded site scrape; %s is the company name.
	OverviewQuery string

	PreSearch PreSearch
}

var specs = map[types.AnalystKind]Spec{
	types.KindFinancial: {
		Kind:          types.KindFinancial,
		Title:         "financial analysis",
		OverviewQuery: "Financial overview of %s",
		Prompt: `Generate queries on the financial performance of {{.Company}}{{with .Industry}}, a company in the {{.}} industry{{end}}. Focus on:
- Revenue, margins and earnings trends over recent years
- Cash flow, balance sheet strength and debt levels
- Funding rounds, capital raises and major investors
- Guidance, analyst estimates and recent earnings surprises`,
	},
	types.KindFundamental: {
		Kind:          types.KindFundamental,
		Title:         "fundamental analysis",
		OverviewQuery: "Overview and qualitative information about %s",
		Prompt: `Generate queries for a qualitative fundamental analysis of {{.Company}}{{with .Industry}} in the {{.}} industry{{end}}. Focus on:
- Business model and key revenue sources
- Competitive advantages and market position
- Management background and governance
- Market size and industry growth trends
- Strategic plans and capital allocation
- Key risks and ESG issues`,
	},
	types.KindValuation: {
		Kind:          types.KindValuation,
		Title:         "valuation analysis",
		OverviewQuery: "Valuation context for %s",
		Prompt: `Generate queries to assess the valuation of {{.Company}}{{with .Industry}} relative to its {{.}} peers{{end}}. Focus on:
- Multiples versus competitors and historical ranges
- Analyst price targets and rating changes
- Growth expectations priced into the stock
{{- with .Context}}

Current market data:
{{.}}{{end}}`,
		PreSearch: valuationPreSearch,
	},
	types.KindNews: {
		Kind:          types.KindNews,
		Title:         "news scan",
		OverviewQuery: "Recent announcements from %s",
		Prompt: `Generate queries for recent news about {{.Company}}{{with .Industry}} in the {{.}} industry{{end}}. Focus on:
- Announcements, product launches and partnerships
- Leadership changes and regulatory actions
- Press coverage from the last few months
- Litigation, recalls or controversies`,
	},
	types.KindIndustry: {
		Kind:          types.KindIndustry,
		Title:         "industry analysis",
		OverviewQuery: "Industry position of %s",
		Prompt: `Generate queries to analyze the industry {{.Company}} competes in{{with .Industry}} ({{.}}){{end}}. Focus on:
- Market size, growth rate and structure
- Main competitors and their market share
- Technology and regulatory trends shaping the sector
- Barriers to entry and supplier or customer power`,
	},
	types.KindCompany: {
		Kind:          types.KindCompany,
		Title:         "company profile",
		OverviewQuery: "Company overview of %s",
		Prompt: `Generate queries to build a company profile of {{.Company}}{{with .HQLocation}}, headquartered in {{.}}{{end}}. Focus on:
- Products, services and target customers
- History, founders and key milestones
- Organization, headcount and locations
- Business segments and geographic footprint`,
	},
}

// SpecFor returns the built-in spec for k.
func SpecFor(k types.AnalystKind) (Spec, bool) {
	s, ok := specs[k]
	return s, ok
}
