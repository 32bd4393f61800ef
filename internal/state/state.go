// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state holds the research record threaded through every stage of a
// job. The record is split into per-kind slots; concurrent stages write only
// through Slot handles, and analysts see only a View, so no two writers
// share a field.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/internal/statusbus"
	"github.com/pdiddy/equity-research/pkg/types"
)

// ErrFrozen is returned by every writer once the record has been frozen.
var ErrFrozen = eris.New("research state is frozen")

// Input carries the identity fields used to create a record.
type Input struct {
	Company    types.Company
	JobID      string
	SiteScrape string

	// Publisher receives progress events for the job. Nil disables them.
	Publisher statusbus.Publisher
}

// slot is the portion of the record owned by one analyst kind. The mutex
// serializes the single writer against readers outside the pipeline.
type slot struct {
	mu       sync.RWMutex
	outcome  types.Outcome
	err      string
	raw      types.Dataset
	curated  types.Dataset
	briefing *string
	stageErr []string
}

// ResearchState is the aggregate record for one job.
type ResearchState struct {
	company    types.Company
	jobID      string
	siteScrape string
	publisher  statusbus.Publisher

	slots      [types.NumKinds]slot
	transcript Transcript

	mu         sync.RWMutex // guards phase, references, report
	phase      types.JobPhase
	references []string
	report     *string

	frozen atomic.Bool
}

// New creates a record with identity populated and every slot empty.
func New(in Input) (*ResearchState, error) {
	if in.Company.Name == "" {
		return nil, eris.New("company name is required")
	}
	if in.JobID == "" {
		return nil, eris.New("job id is required")
	}
	st := &ResearchState{
		company:    in.Company,
		jobID:      in.JobID,
		siteScrape: in.SiteScrape,
		publisher:  in.Publisher,
		phase:      types.PhaseCreated,
	}
	for i := range st.slots {
		st.slots[i].outcome = types.OutcomePending
	}
	return st, nil
}

// Company returns the company identity.
func (s *ResearchState) Company() types.Company { return s.company }

// JobID returns the job identifier.
func (s *ResearchState) JobID() string { return s.jobID }

// SiteScrape returns the first-party site text, if any.
func (s *ResearchState) SiteScrape() string { return s.siteScrape }

// Publisher returns the status publisher for the job, or a no-op one.
func (s *ResearchState) Publisher() statusbus.Publisher {
	if s.publisher == nil {
		return statusbus.Discard
	}
	return s.publisher
}

// Phase returns the current job phase.
func (s *ResearchState) Phase() types.JobPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Advance moves the record to next. Only the successor phase, or Failed
// from Researching, is accepted.
func (s *ResearchState) Advance(next types.JobPhase) error {
	if s.frozen.Load() {
		return ErrFrozen
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.CanTransition(next) {
		return eris.Errorf("invalid phase transition %s -> %s", s.phase, next)
	}
	s.phase = next
	return nil
}

// Freeze makes the record read-only. Every later write returns ErrFrozen.
func (s *ResearchState) Freeze() { s.frozen.Store(true) }

// Frozen reports whether Freeze has been called.
func (s *ResearchState) Frozen() bool { return s.frozen.Load() }

// Transcript returns the append-only progress log.
func (s *ResearchState) Transcript() *Transcript { return &s.transcript }

// View returns the narrowed handle an analyst of kind k works through.
func (s *ResearchState) View(k types.AnalystKind) *View {
	return &View{state: s, kind: k}
}

// Slot returns the write handle for kind k. It panics on an unknown kind,
// which is a programming error.
func (s *ResearchState) Slot(k types.AnalystKind) *Slot {
	i := k.Index()
	if i < 0 {
		panic(fmt.Sprintf("state: unknown analyst kind %q", k))
	}
	return &Slot{state: s, kind: k, slot: &s.slots[i]}
}

// Outcome returns the terminal outcome recorded for kind k and its error
// annotation.
func (s *ResearchState) Outcome(k types.AnalystKind) (types.Outcome, string) {
	sl := s.Slot(k).slot
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.outcome, sl.err
}

// Raw returns a copy of the raw dataset for kind k.
func (s *ResearchState) Raw(k types.AnalystKind) types.Dataset {
	sl := s.Slot(k).slot
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.raw.Clone()
}

// Curated returns a copy of the curated dataset for kind k.
func (s *ResearchState) Curated(k types.AnalystKind) types.Dataset {
	sl := s.Slot(k).slot
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.curated.Clone()
}

// Briefing returns the briefing for kind k, if one was written.
func (s *ResearchState) Briefing(k types.AnalystKind) (string, bool) {
	sl := s.Slot(k).slot
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	if sl.briefing == nil {
		return "", false
	}
	return *sl.briefing, true
}

// StageErrors returns the curation/briefing errors recorded for kind k.
func (s *ResearchState) StageErrors(k types.AnalystKind) []string {
	sl := s.Slot(k).slot
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return append([]string(nil), sl.stageErr...)
}

// Succeeded lists the kinds whose research outcome is success, in table order.
func (s *ResearchState) Succeeded() []types.AnalystKind {
	var out []types.AnalystKind
	for _, k := range types.Kinds {
		if o, _ := s.Outcome(k); o == types.OutcomeSucceeded {
			out = append(out, k)
		}
	}
	return out
}

// Failed maps each failed kind to its error annotation.
func (s *ResearchState) Failed() map[types.AnalystKind]string {
	out := make(map[types.AnalystKind]string)
	for _, k := range types.Kinds {
		if o, msg := s.Outcome(k); o == types.OutcomeFailed {
			out[k] = msg
		}
	}
	return out
}

// References returns the deduplicated citation list.
func (s *ResearchState) References() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.references...)
}

// Report returns the final report, if compiled.
func (s *ResearchState) Report() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return "", false
	}
	return *s.report, true
}

// SetReport writes the report and reference set. Only the compile stage
// calls it; references are deduplicated preserving first occurrence.
func (s *ResearchState) SetReport(report string, references []string) error {
	if s.frozen.Load() {
		return ErrFrozen
	}
	seen := make(map[string]bool, len(references))
	refs := make([]string, 0, len(references))
	for _, r := range references {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		refs = append(refs, r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = &report
	s.references = refs
	return nil
}
