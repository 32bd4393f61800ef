// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/equity-research/pkg/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

func (p *recordingPublisher) Publish(jobID string, status types.JobStatus, message string, result types.StatusResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, types.StatusEvent{JobID: jobID, Status: status, Message: message, Result: result})
}

func newState(t *testing.T) *ResearchState {
	t.Helper()
	st, err := New(Input{Company: types.Company{Name: "Acme Corp"}, JobID: "job-1"})
	require.NoError(t, err)
	return st
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(Input{JobID: "j"})
	assert.Error(t, err)
	_, err = New(Input{Company: types.Company{Name: "Acme"}})
	assert.Error(t, err)
}

func TestNew_AllSlotsPending(t *testing.T) {
	st := newState(t)
	assert.Equal(t, types.PhaseCreated, st.Phase())
	for _, k := range types.Kinds {
		o, msg := st.Outcome(k)
		assert.Equal(t, types.OutcomePending, o, k)
		assert.Empty(t, msg)
		assert.Empty(t, st.Raw(k))
	}
	assert.Empty(t, st.Succeeded())
	assert.Empty(t, st.Failed())
}

func TestSlot_CommitOnce(t *testing.T) {
	st := newState(t)
	sl := st.Slot(types.KindNews)

	require.NoError(t, sl.Commit(types.Dataset{"https://a": {Title: "A"}}))
	assert.Error(t, sl.Commit(types.Dataset{}))
	assert.Error(t, sl.Fail(errors.New("late")))

	o, _ := st.Outcome(types.KindNews)
	assert.Equal(t, types.OutcomeSucceeded, o)
	assert.Len(t, st.Raw(types.KindNews), 1)
	assert.Equal(t, []types.AnalystKind{types.KindNews}, st.Succeeded())
}

func TestSlot_CommitNilIsEmptySuccess(t *testing.T) {
	st := newState(t)
	require.NoError(t, st.Slot(types.KindCompany).Commit(nil))
	o, _ := st.Outcome(types.KindCompany)
	assert.Equal(t, types.OutcomeSucceeded, o)
	assert.NotNil(t, st.Raw(types.KindCompany))
	assert.Empty(t, st.Raw(types.KindCompany))
}

func TestSlot_FailLeavesRawEmpty(t *testing.T) {
	st := newState(t)
	require.NoError(t, st.Slot(types.KindValuation).Fail(errors.New("llm timeout")))

	o, msg := st.Outcome(types.KindValuation)
	assert.Equal(t, types.OutcomeFailed, o)
	assert.Equal(t, "llm timeout", msg)
	assert.Empty(t, st.Raw(types.KindValuation))
	assert.Equal(t, map[types.AnalystKind]string{types.KindValuation: "llm timeout"}, st.Failed())
	assert.Error(t, st.Slot(types.KindValuation).SetCurated(types.Dataset{}))
}

func TestSlot_RawCopyIsIndependent(t *testing.T) {
	st := newState(t)
	require.NoError(t, st.Slot(types.KindNews).Commit(types.Dataset{"u": {Title: "T"}}))

	cp := st.Raw(types.KindNews)
	cp["other"] = types.Document{}
	assert.Len(t, st.Raw(types.KindNews), 1)
}

func TestSlot_BriefingWrittenOnce(t *testing.T) {
	st := newState(t)
	sl := st.Slot(types.KindFinancial)
	require.NoError(t, sl.SetBriefing("revenue grew"))
	assert.Error(t, sl.SetBriefing("again"))

	b, ok := st.Briefing(types.KindFinancial)
	assert.True(t, ok)
	assert.Equal(t, "revenue grew", b)
	_, ok = st.Briefing(types.KindNews)
	assert.False(t, ok)
}

func TestSlot_StageErrors(t *testing.T) {
	st := newState(t)
	require.NoError(t, st.Slot(types.KindNews).NoteStageError("briefing", errors.New("rate limited")))
	assert.Equal(t, []string{"briefing: rate limited"}, st.StageErrors(types.KindNews))
}

func TestSlot_UnknownKindPanics(t *testing.T) {
	st := newState(t)
	assert.Panics(t, func() { st.Slot(types.AnalystKind("macro")) })
}

func TestConcurrentSlotWriters(t *testing.T) {
	st := newState(t)
	var wg sync.WaitGroup
	for i, k := range types.Kinds {
		wg.Add(1)
		go func(i int, k types.AnalystKind) {
			defer wg.Done()
			st.View(k).Note("started " + string(k))
			if i%2 == 0 {
				_ = st.Slot(k).Commit(types.Dataset{"https://" + string(k): {Title: string(k)}})
				return
			}
			_ = st.Slot(k).Fail(errors.New("boom"))
		}(i, k)
	}
	wg.Wait()

	assert.Len(t, st.Succeeded(), 3)
	assert.Len(t, st.Failed(), 3)
	assert.Equal(t, types.NumKinds, st.Transcript().Len())
	for _, k := range st.Succeeded() {
		raw := st.Raw(k)
		require.Len(t, raw, 1)
		_, ok := raw["https://"+string(k)]
		assert.True(t, ok, "slot %s holds another kind's data", k)
	}
}

func TestAdvance(t *testing.T) {
	st := newState(t)
	assert.Error(t, st.Advance(types.PhaseCurating))
	assert.Error(t, st.Advance(types.PhaseFailed))

	require.NoError(t, st.Advance(types.PhaseResearching))
	require.NoError(t, st.Advance(types.PhaseCurating))
	assert.Error(t, st.Advance(types.PhaseFailed))
	require.NoError(t, st.Advance(types.PhaseBriefing))
	require.NoError(t, st.Advance(types.PhaseCompiling))
	require.NoError(t, st.Advance(types.PhaseCompleted))
	assert.Error(t, st.Advance(types.PhaseCompleted))
}

func TestFreeze_RejectsWrites(t *testing.T) {
	pub := &recordingPublisher{}
	st, err := New(Input{Company: types.Company{Name: "Acme"}, JobID: "j", Publisher: pub})
	require.NoError(t, err)
	require.NoError(t, st.SetReport("# Report", []string{"b", "a", "b", ""}))
	st.Freeze()

	assert.True(t, st.Frozen())
	assert.ErrorIs(t, st.Slot(types.KindNews).Commit(nil), ErrFrozen)
	assert.ErrorIs(t, st.Slot(types.KindNews).Fail(nil), ErrFrozen)
	assert.ErrorIs(t, st.Advance(types.PhaseResearching), ErrFrozen)
	assert.ErrorIs(t, st.SetReport("other", nil), ErrFrozen)

	st.View(types.KindNews).Note("late")
	st.View(types.KindNews).Publish(types.StatusProcessing, "late", types.StatusResult{})
	assert.Zero(t, st.Transcript().Len())
	assert.Empty(t, pub.events)

	report, ok := st.Report()
	assert.True(t, ok)
	assert.Equal(t, "# Report", report)
	assert.Equal(t, []string{"b", "a"}, st.References())
}

func TestView_PublishDefaultsStepAndKind(t *testing.T) {
	pub := &recordingPublisher{}
	st, err := New(Input{Company: types.Company{Name: "Acme"}, JobID: "job-7", Publisher: pub})
	require.NoError(t, err)

	v := st.View(types.KindFundamental)
	v.Publish(types.StatusProcessing, "queries generated", types.StatusResult{Queries: []string{"q1"}})
	v.Publish(types.StatusProcessing, "custom", types.StatusResult{Step: "Searching"})

	require.Len(t, pub.events, 2)
	assert.Equal(t, "job-7", pub.events[0].JobID)
	assert.Equal(t, "Fundamental Analyst", pub.events[0].Result.Step)
	assert.Equal(t, "fundamental", pub.events[0].Result.AnalystType)
	assert.Equal(t, "Searching", pub.events[1].Result.Step)
}

func TestPublisher_DefaultsToDiscard(t *testing.T) {
	st := newState(t)
	assert.NotNil(t, st.Publisher())
	st.View(types.KindNews).Publish(types.StatusProcessing, "no observers", types.StatusResult{})
}

func TestTranscript_MessagesIsCopy(t *testing.T) {
	var tr Transcript
	tr.Append("one")
	msgs := tr.Messages()
	msgs[0] = "changed"
	assert.Equal(t, []string{"one"}, tr.Messages())
}
