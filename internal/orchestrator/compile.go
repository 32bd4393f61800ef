// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

// reportOrder is the section order of the compiled report.
var reportOrder = []types.AnalystKind{
	types.KindCompany,
	types.KindIndustry,
	types.KindFinancial,
	types.KindFundamental,
	types.KindValuation,
	types.KindNews,
}

var sectionTitles = map[types.AnalystKind]string{
	types.KindCompany:     "Company Overview",
	types.KindIndustry:    "Industry Analysis",
	types.KindFinancial:   "Financial Analysis",
	types.KindFundamental: "Fundamental Analysis",
	types.KindValuation:   "Valuation",
	types.KindNews:        "Recent News",
}

// Compile assembles the report and reference list from st. The output
// depends only on the record's contents, never on stage timing.
func Compile(st *state.ResearchState, cfg types.CompileConfig) (string, []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Research Report\n", st.Company().Name)

	for _, k := range reportOrder {
		text, ok := st.Briefing(k)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sectionTitles[k], strings.TrimSpace(text))
	}

	b.WriteString("\n## Analyst Coverage\n\n")
	for _, k := range reportOrder {
		fmt.Fprintf(&b, "- %s: %s\n", k.Label(), coverage(st, k))
	}

	refs := references(st, cfg.MaxReferences)
	if len(refs) > 0 {
		b.WriteString("\n## References\n\n")
		for _, r := range refs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String(), refs
}

// coverage describes what one kind contributed. A failed analyst is kept
// distinct from one that ran and found nothing.
func coverage(st *state.ResearchState, k types.AnalystKind) string {
	outcome, reason := st.Outcome(k)
	var line string
	switch outcome {
	case types.OutcomeFailed:
		line = "failed: " + reason
	case types.OutcomeSucceeded:
		n := len(st.Raw(k))
		if n == 0 {
			line = "no documents found"
		} else {
			line = fmt.Sprintf("%d documents", n)
		}
	default:
		line = "not run"
	}
	if errs := st.StageErrors(k); len(errs) > 0 {
		line += " (" + strings.Join(errs, "; ") + ")"
	}
	return line
}

// references collects curated source URLs across kinds, normalized and
// deduplicated, ordered by best score then URL.
func references(st *state.ResearchState, limit int) []string {
	best := make(map[string]float64)
	for _, k := range types.Kinds {
		for u, doc := range st.Curated(k) {
			n, ok := normalizeURL(u)
			if !ok {
				continue
			}
			if s, seen := best[n]; !seen || doc.Score > s {
				best[n] = doc.Score
			}
		}
	}
	refs := make([]string, 0, len(best))
	for u := range best {
		refs = append(refs, u)
	}
	sort.Slice(refs, func(i, j int) bool {
		if best[refs[i]] != best[refs[j]] {
			return best[refs[i]] > best[refs[j]]
		}
		return refs[i] < refs[j]
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}

// normalizeURL lower-cases the host and drops the fragment and trailing
// slash. Identifiers that are not http(s) URLs are not references.
func normalizeURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}
