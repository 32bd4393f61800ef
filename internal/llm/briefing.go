// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/pkg/types"
)

const defaultMaxDocChars = 4000

// briefingFocus tells the model what each kind's briefing should cover.
var briefingFocus = map[types.AnalystKind]string{
	types.KindFinancial:   "revenue, profitability, cash flow, balance sheet and funding history",
	types.KindFundamental: "business model, competitive advantages, management, strategy and key risks",
	types.KindValuation:   "valuation multiples, market data, analyst targets and how the stock is priced against peers",
	types.KindNews:        "the most recent material developments, each with its date where the sources give one",
	types.KindIndustry:    "market size and growth, competitive landscape and trends affecting the sector",
	types.KindCompany:     "what the company does, its products, customers, history and footprint",
}

var briefingTmpl = template.Must(template.New("briefing").Parse(`You are an equity research analyst writing the {{.Label}} section of a report on {{.Company.Name}}{{with .Company.Industry}} ({{.}}){{end}}.

Cover {{.Focus}}.
Use only facts from the sources below. Write concise markdown bullet points grouped under short bold headings. Do not add a section title and do not cite URLs inline.
{{range $i, $d := .Docs}}
--- Source {{$i}}: {{$d.Title}} ({{$d.URL}})
{{$d.Content}}
{{end}}`))

// Briefer writes per-kind briefings with a language model.
type Briefer struct {
	LLM         Completer
	MaxDocChars int
}

type briefingDoc struct {
	Title   string
	URL     string
	Content string
}

// Summarize renders the curated documents, best first, into a briefing
// prompt and returns the model's reply.
func (b *Briefer) Summarize(ctx context.Context, kind types.AnalystKind, curated types.Dataset, company types.Company) (string, error) {
	if len(curated) == 0 {
		return "", eris.Errorf("no documents to brief for %s", kind)
	}
	limit := b.MaxDocChars
	if limit <= 0 {
		limit = defaultMaxDocChars
	}

	ranked := curated.Ranked()
	docs := make([]briefingDoc, 0, len(ranked))
	for _, d := range ranked {
		docs = append(docs, briefingDoc{Title: d.Title, URL: d.URL, Content: truncate(d.RawContent, limit)})
	}

	focus, ok := briefingFocus[kind]
	if !ok {
		return "", eris.Errorf("unknown analyst kind %q", kind)
	}

	var buf bytes.Buffer
	err := briefingTmpl.Execute(&buf, struct {
		Label   string
		Company types.Company
		Focus   string
		Docs    []briefingDoc
	}{kind.Label(), company, focus, docs})
	if err != nil {
		return "", eris.Wrap(err, "rendering briefing prompt")
	}

	reply, err := b.LLM.Complete(ctx, buf.String())
	if err != nil {
		return "", eris.Wrapf(err, "writing %s briefing", kind)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", eris.Errorf("model returned an empty %s briefing", kind)
	}
	return reply, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
