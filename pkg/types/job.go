// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobPhase tracks a job's progress through the fixed stage chain.
type JobPhase string

const (
	PhaseCreated     JobPhase = "created"
	PhaseResearching JobPhase = "researching"
	PhaseCurating    JobPhase = "curating"
	PhaseBriefing    JobPhase = "briefing"
	PhaseCompiling   JobPhase = "compiling"
	PhaseCompleted   JobPhase = "completed"
	PhaseFailed      JobPhase = "failed"
)

// phaseOrder is the linear chain a successful job walks.
var phaseOrder = []JobPhase{
	PhaseCreated,
	PhaseResearching,
	PhaseCurating,
	PhaseBriefing,
	PhaseCompiling,
	PhaseCompleted,
}

// Next returns the phase that follows p on the success path. Terminal
// phases have no successor.
func (p JobPhase) Next() (JobPhase, bool) {
	for i, ph := range phaseOrder {
		if ph == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// Terminal reports whether p ends the job.
func (p JobPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CanTransition reports whether a job in phase p may move to next.
// Failed is reachable only from Researching.
func (p JobPhase) CanTransition(next JobPhase) bool {
	if next == PhaseFailed {
		return p == PhaseResearching
	}
	n, ok := p.Next()
	return ok && n == next
}

// Outcome is the terminal result of one analyst slot.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// JobStatus is the coarse status carried by every status event.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// StatusResult is the structured payload of a status event. Fields holds
// stage-specific values that are flattened into the result object.
type StatusResult struct {
	Step           string         `json:"step"`
	AnalystType    string         `json:"analyst_type,omitempty"`
	Queries        []string       `json:"queries,omitempty"`
	DocumentsFound *int           `json:"documents_found,omitempty"`
	Fields         map[string]any `json:"-"`
}

// WithDocuments returns a copy of r carrying a document count.
func (r StatusResult) WithDocuments(n int) StatusResult {
	r.DocumentsFound = &n
	return r
}

// MarshalJSON flattens Fields into the result object. Named fields win over
// Fields entries with the same key.
func (r StatusResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["step"] = r.Step
	if r.AnalystType != "" {
		out["analyst_type"] = r.AnalystType
	}
	if len(r.Queries) > 0 {
		out["queries"] = r.Queries
	}
	if r.DocumentsFound != nil {
		out["documents_found"] = *r.DocumentsFound
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: unknown keys land in Fields.
func (r *StatusResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = StatusResult{}
	for k, v := range raw {
		var err error
		switch k {
		case "step":
			err = json.Unmarshal(v, &r.Step)
		case "analyst_type":
			err = json.Unmarshal(v, &r.AnalystType)
		case "queries":
			err = json.Unmarshal(v, &r.Queries)
		case "documents_found":
			var n int
			if err = json.Unmarshal(v, &n); err == nil {
				r.DocumentsFound = &n
			}
		default:
			var val any
			if err = json.Unmarshal(v, &val); err == nil {
				if r.Fields == nil {
					r.Fields = make(map[string]any)
				}
				r.Fields[k] = val
			}
		}
		if err != nil {
			return fmt.Errorf("decoding result field %q: %w", k, err)
		}
	}
	return nil
}

// StatusEvent is one progress notification for a job.
type StatusEvent struct {
	JobID   string       `json:"job_id"`
	Status  JobStatus    `json:"status"`
	Message string       `json:"message"`
	Result  StatusResult `json:"result"`
}

// ValuationMetrics holds the market data the valuation analyst seeds into
// its dataset. Nil fields are unknown and render as N/A.
type ValuationMetrics struct {
	Ticker         string   `json:"ticker" yaml:"ticker"`
	PERatio        *float64 `json:"pe_ratio" yaml:"pe_ratio"`
	ForwardPE      *float64 `json:"forward_pe" yaml:"forward_pe"`
	EPS            *float64 `json:"eps" yaml:"eps"`
	MarketCap      *float64 `json:"market_cap" yaml:"market_cap"`
	DividendYield  *float64 `json:"dividend_yield" yaml:"dividend_yield"`
	Beta           *float64 `json:"beta" yaml:"beta"`
	PriceToBook    *float64 `json:"price_to_book" yaml:"price_to_book"`
	ReturnOnEquity *float64 `json:"return_on_equity" yaml:"return_on_equity"`
	EstimatedDCF   *float64 `json:"estimated_dcf" yaml:"estimated_dcf"`
}

// NotAvailable is the placeholder for an unknown metric.
const NotAvailable = "N/A"

func formatMetric(v *float64, format string) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf(format, *v)
}

// Summary renders the metrics as a bulleted markdown block.
func (m ValuationMetrics) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Valuation Summary for %s:\n", m.Ticker)
	fmt.Fprintf(&b, "* P/E Ratio: %s\n", formatMetric(m.PERatio, "%.2f"))
	fmt.Fprintf(&b, "* Forward P/E: %s\n", formatMetric(m.ForwardPE, "%.2f"))
	fmt.Fprintf(&b, "* EPS: %s\n", formatMetric(m.EPS, "%.2f"))
	if m.MarketCap == nil {
		fmt.Fprintf(&b, "* Market Cap: %s\n", NotAvailable)
	} else {
		fmt.Fprintf(&b, "* Market Cap: $%s\n", groupThousands(*m.MarketCap))
	}
	fmt.Fprintf(&b, "* Dividend Yield: %s\n", formatMetric(m.DividendYield, "%.4f"))
	fmt.Fprintf(&b, "* Beta: %s\n", formatMetric(m.Beta, "%.2f"))
	fmt.Fprintf(&b, "* Price to Book: %s\n", formatMetric(m.PriceToBook, "%.2f"))
	fmt.Fprintf(&b, "* Return on Equity: %s\n", formatMetric(m.ReturnOnEquity, "%.4f"))
	fmt.Fprintf(&b, "* Estimated DCF Value (GGM): %s", formatMetric(m.EstimatedDCF, "%.2f"))
	return b.String()
}

// groupThousands formats v as an integer with comma separators.
func groupThousands(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
