// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/pkg/types"
)

// Slot is the write handle for one analyst kind's portion of the record.
// A slot moves from pending to exactly one terminal research outcome; its
// raw dataset is either fully set or left empty.
type Slot struct {
	state *ResearchState
	kind  types.AnalystKind
	slot  *slot
}

// Kind returns the analyst kind owning the slot.
func (s *Slot) Kind() types.AnalystKind { return s.kind }

// Commit stores the analyst's dataset and marks the slot succeeded. A nil
// dataset is stored as empty: finding nothing is still a success.
func (s *Slot) Commit(ds types.Dataset) error {
	if s.state.frozen.Load() {
		return ErrFrozen
	}
	if ds == nil {
		ds = types.Dataset{}
	}
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	if s.slot.outcome != types.OutcomePending {
		return eris.Errorf("%s slot already %s", s.kind, s.slot.outcome)
	}
	s.slot.raw = ds
	s.slot.outcome = types.OutcomeSucceeded
	return nil
}

// Fail marks the slot failed with reason; the raw dataset stays empty.
func (s *Slot) Fail(reason error) error {
	if s.state.frozen.Load() {
		return ErrFrozen
	}
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	if s.slot.outcome != types.OutcomePending {
		return eris.Errorf("%s slot already %s", s.kind, s.slot.outcome)
	}
	s.slot.raw = types.Dataset{}
	s.slot.outcome = types.OutcomeFailed
	if reason != nil {
		s.slot.err = reason.Error()
	}
	return nil
}

// Raw returns the committed raw dataset. Callers must not modify it.
func (s *Slot) Raw() types.Dataset {
	s.slot.mu.RLock()
	defer s.slot.mu.RUnlock()
	return s.slot.raw
}

// SetCurated stores the curated dataset. Only succeeded slots are curated.
func (s *Slot) SetCurated(ds types.Dataset) error {
	if s.state.frozen.Load() {
		return ErrFrozen
	}
	if ds == nil {
		ds = types.Dataset{}
	}
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	if s.slot.outcome != types.OutcomeSucceeded {
		return eris.Errorf("cannot curate %s slot in outcome %s", s.kind, s.slot.outcome)
	}
	s.slot.curated = ds
	return nil
}

// Curated returns the curated dataset. Callers must not modify it.
func (s *Slot) Curated() types.Dataset {
	s.slot.mu.RLock()
	defer s.slot.mu.RUnlock()
	return s.slot.curated
}

// SetBriefing stores the briefing text for the slot.
func (s *Slot) SetBriefing(text string) error {
	if s.state.frozen.Load() {
		return ErrFrozen
	}
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	if s.slot.briefing != nil {
		return eris.Errorf("%s briefing already written", s.kind)
	}
	s.slot.briefing = &text
	return nil
}

// NoteStageError records a non-fatal curation or briefing failure.
func (s *Slot) NoteStageError(stage string, err error) error {
	if s.state.frozen.Load() {
		return ErrFrozen
	}
	s.slot.mu.Lock()
	defer s.slot.mu.Unlock()
	s.slot.stageErr = append(s.slot.stageErr, fmt.Sprintf("%s: %v", stage, err))
	return nil
}
