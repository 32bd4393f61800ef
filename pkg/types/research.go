// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the equity-research pipeline.
// Covers the analyst kinds, the document/dataset record shape, company identity,
// job phases, and the status event payload delivered to observers.
package types

import (
	"fmt"
	"sort"
)

// AnalystKind identifies one research angle. Each kind owns exactly one slot
// of the research state.
type AnalystKind string

const (
	KindFinancial   AnalystKind = "financial"
	KindFundamental AnalystKind = "fundamental"
	KindValuation   AnalystKind = "valuation"
	KindNews        AnalystKind = "news"
	KindIndustry    AnalystKind = "industry"
	KindCompany     AnalystKind = "company"
)

// Kinds is the fixed table of analyst kinds. The position of a kind in this
// table is its slot index.
var Kinds = [...]AnalystKind{
	KindFinancial,
	KindFundamental,
	KindValuation,
	KindNews,
	KindIndustry,
	KindCompany,
}

// NumKinds is the number of analyst kinds.
const NumKinds = len(Kinds)

// Index returns the slot index of k, or -1 for an unknown kind.
func (k AnalystKind) Index() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is one of the known kinds.
func (k AnalystKind) Valid() bool {
	return k.Index() >= 0
}

// Label returns the human-readable step label used in status events
// (e.g. "Fundamental Analyst").
func (k AnalystKind) Label() string {
	switch k {
	case KindFinancial:
		return "Financial Analyst"
	case KindFundamental:
		return "Fundamental Analyst"
	case KindValuation:
		return "Valuation Analyst"
	case KindNews:
		return "News Scanner"
	case KindIndustry:
		return "Industry Analyst"
	case KindCompany:
		return "Company Analyst"
	default:
		return string(k)
	}
}

// ParseKind converts a string into an AnalystKind.
func ParseKind(s string) (AnalystKind, error) {
	k := AnalystKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown analyst kind %q", s)
	}
	return k, nil
}

// Document is one source record gathered by an analyst.
type Document struct {
	// Title is the source title as returned by the search collaborator.
	Title string `json:"title" yaml:"title"`

	// RawContent is the full text of the source.
	RawContent string `json:"raw_content" yaml:"raw_content"`

	// Query is the search query that first produced this document.
	Query string `json:"query" yaml:"query"`

	// Score is the relevance score reported by the search collaborator.
	// First-party documents carry 0 unless the seeding step sets one.
	Score float64 `json:"score" yaml:"score"`
}

// Dataset maps a source identifier (typically a URL) to its document.
type Dataset map[string]Document

// AddFirst stores doc under url unless url is already present. It reports
// whether the document was added.
func (d Dataset) AddFirst(url string, doc Document) bool {
	if _, ok := d[url]; ok {
		return false
	}
	d[url] = doc
	return true
}

// Clone returns a shallow copy of d. Documents are values so the copy is
// independent of d. A nil dataset clones to nil.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// URLs returns the dataset keys in lexical order.
func (d Dataset) URLs() []string {
	urls := make([]string, 0, len(d))
	for u := range d {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// RankedDocument pairs a document with its source identifier.
type RankedDocument struct {
	URL string
	Document
}

// Ranked returns the documents ordered by score descending, then URL.
func (d Dataset) Ranked() []RankedDocument {
	out := make([]RankedDocument, 0, len(d))
	for u, doc := range d {
		out = append(out, RankedDocument{URL: u, Document: doc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Company holds the identity fields of a research job.
type Company struct {
	Name       string `json:"company" yaml:"company"`
	URL        string `json:"company_url,omitempty" yaml:"company_url,omitempty"`
	Industry   string `json:"industry,omitempty" yaml:"industry,omitempty"`
	HQLocation string `json:"hq_location,omitempty" yaml:"hq_location,omitempty"`

	// Ticker is an optional exchange symbol hint. When empty the valuation
	// analyst resolves one itself.
	Ticker string `json:"ticker,omitempty" yaml:"ticker,omitempty"`
}
