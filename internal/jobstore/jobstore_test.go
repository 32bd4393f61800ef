// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

var acme = types.Company{Name: "Acme Corp", URL: "https://acme.example", Industry: "Manufacturing", Ticker: "ACME"}

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(types.StoreConfig{
		Path:      filepath.Join(dir, "db", "jobs.db"),
		ExportDir: filepath.Join(dir, "reports"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// finishedState builds a completed record: financial succeeded with two
// documents (one curated and briefed), news failed, industry succeeded
// empty with a stage error.
func finishedState(t *testing.T, jobID string) *state.ResearchState {
	t.Helper()
	st, err := state.New(state.Input{Company: acme, JobID: jobID})
	require.NoError(t, err)
	st.Transcript().Append("Subqueries for financial analysis:\n- acme revenue")

	require.NoError(t, st.Advance(types.PhaseResearching))
	require.NoError(t, st.Slot(types.KindFinancial).Commit(types.Dataset{
		"https://news.example/acme-earnings": {Title: "Acme earnings beat", RawContent: "Quarterly revenue rose on anvil demand", Query: "acme revenue", Score: 0.9},
		"https://blog.example/acme-rumor":    {Title: "Rumor mill", RawContent: "Unverified chatter about roadrunners", Query: "acme revenue", Score: 0.1},
	}))
	require.NoError(t, st.Slot(types.KindNews).Fail(errors.New("search failed: HTTP 500")))
	require.NoError(t, st.Slot(types.KindIndustry).Commit(nil))

	require.NoError(t, st.Advance(types.PhaseCurating))
	require.NoError(t, st.Slot(types.KindFinancial).SetCurated(types.Dataset{
		"https://news.example/acme-earnings": st.Raw(types.KindFinancial)["https://news.example/acme-earnings"],
	}))
	require.NoError(t, st.Slot(types.KindIndustry).SetCurated(nil))
	require.NoError(t, st.Slot(types.KindIndustry).NoteStageError("curation", errors.New("ranker crashed")))

	require.NoError(t, st.Advance(types.PhaseBriefing))
	require.NoError(t, st.Slot(types.KindFinancial).SetBriefing("Revenue is growing."))

	require.NoError(t, st.Advance(types.PhaseCompiling))
	require.NoError(t, st.SetReport("# Acme Corp Research Report\n", []string{"https://news.example/acme-earnings"}))
	require.NoError(t, st.Advance(types.PhaseCompleted))
	st.Freeze()
	return st
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(types.StoreConfig{})
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(context.Background(), "job-1", acme))
	require.NoError(t, s.Close())

	s, err = Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()
	jobs, err := s.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
}

func TestCreateJobAndRecordPhase(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, "job-1", acme))
	assert.Error(t, s.CreateJob(ctx, "job-1", acme), "duplicate id")

	require.NoError(t, s.RecordPhase(ctx, "job-1", types.PhaseResearching))
	rec, err := s.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseResearching, rec.Phase)
	assert.Equal(t, acme, rec.Company)
	assert.Empty(t, rec.Report)
}

func TestRecordPhase_UnknownJobCreatesRow(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.RecordPhase(context.Background(), "orphan", types.PhaseResearching))

	rec, err := s.Job(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseResearching, rec.Phase)
	assert.Empty(t, rec.Company.Name)
}

func TestJob_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Job(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendAndEvents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sent := []types.StatusEvent{
		{JobID: "job-1", Status: types.StatusQueued, Message: "Job queued", Result: types.StatusResult{Step: "Queued"}},
		{JobID: "job-2", Status: types.StatusProcessing, Message: "other job", Result: types.StatusResult{Step: "Research"}},
		{JobID: "job-1", Status: types.StatusProcessing, Message: "Found 3 documents for financial analysis",
			Result: types.StatusResult{Step: "Searching", AnalystType: "financial", Queries: []string{"q1"}}.WithDocuments(3)},
		{JobID: "job-1", Status: types.StatusCompleted, Message: "Research complete",
			Result: types.StatusResult{Step: "Complete", Fields: map[string]any{"report": "# Acme"}}},
	}
	for _, ev := range sent {
		require.NoError(t, s.Send(ctx, ev))
	}

	got, err := s.Events(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Job queued", got[0].Message)
	assert.Equal(t, "Searching", got[1].Result.Step)
	require.NotNil(t, got[1].Result.DocumentsFound)
	assert.Equal(t, 3, *got[1].Result.DocumentsFound)
	assert.Equal(t, []string{"q1"}, got[1].Result.Queries)
	assert.Equal(t, types.StatusCompleted, got[2].Status)
	assert.Equal(t, "# Acme", got[2].Result.Fields["report"])

	none, err := s.Events(ctx, "job-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveResult(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, "job-1", acme))

	require.NoError(t, s.SaveResult(ctx, finishedState(t, "job-1")))

	rec, err := s.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, rec.Phase)
	assert.Equal(t, "# Acme Corp Research Report\n", rec.Report)
	assert.Equal(t, []string{"https://news.example/acme-earnings"}, rec.References)
	assert.Len(t, rec.Transcript, 1)
	assert.Equal(t, map[types.AnalystKind]string{types.KindFinancial: "Revenue is growing."}, rec.Briefings)

	require.Len(t, rec.Outcomes, types.NumKinds)
	byKind := map[types.AnalystKind]AnalystOutcome{}
	for _, o := range rec.Outcomes {
		byKind[o.Kind] = o
	}
	assert.Equal(t, types.KindFinancial, rec.Outcomes[0].Kind, "outcomes in table order")
	assert.Equal(t, AnalystOutcome{Kind: types.KindFinancial, Outcome: types.OutcomeSucceeded, RawCount: 2, CuratedCount: 1}, byKind[types.KindFinancial])
	assert.Equal(t, types.OutcomeFailed, byKind[types.KindNews].Outcome)
	assert.Equal(t, "search failed: HTTP 500", byKind[types.KindNews].Error)
	assert.Equal(t, []string{"curation: ranker crashed"}, byKind[types.KindIndustry].StageErrors)
	assert.Equal(t, types.OutcomePending, byKind[types.KindValuation].Outcome)
}

func TestSaveResult_Replaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	st := finishedState(t, "job-1")

	require.NoError(t, s.SaveResult(ctx, st))
	require.NoError(t, s.SaveResult(ctx, st))

	docs, err := s.SearchDocuments(ctx, DocumentQuery{JobID: "job-1"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSearchDocuments(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, finishedState(t, "job-1")))
	require.NoError(t, s.SaveResult(ctx, finishedState(t, "job-2")))

	hits, err := s.SearchDocuments(ctx, DocumentQuery{Query: "anvil"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "https://news.example/acme-earnings", h.URL)
		assert.Equal(t, types.KindFinancial, h.Kind)
		assert.True(t, h.Curated)
		assert.Equal(t, "acme revenue", h.Query)
	}

	hits, err = s.SearchDocuments(ctx, DocumentQuery{Query: "roadrunners", JobID: "job-2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "job-2", hits[0].JobID)
	assert.False(t, hits[0].Curated)

	hits, err = s.SearchDocuments(ctx, DocumentQuery{JobID: "job-1", CuratedOnly: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = s.SearchDocuments(ctx, DocumentQuery{JobID: "job-1", Kind: types.KindNews})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchDocuments(ctx, DocumentQuery{JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Greater(t, hits[0].Score, hits[1].Score, "filter-only results ordered by score")

	hits, err = s.SearchDocuments(ctx, DocumentQuery{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestListJobs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateJob(ctx, id, acme))
	}

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = s.ListJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestExport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, finishedState(t, "job-1")))
	require.NoError(t, s.Send(ctx, types.StatusEvent{JobID: "job-1", Status: types.StatusCompleted, Message: "Research complete"}))

	yamlPath, err := s.ExportYAML(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1.yaml", filepath.Base(yamlPath))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Contains(t, fromYAML, "job")
	assert.Contains(t, fromYAML, "documents")
	assert.NotContains(t, fromYAML, "events")

	jsonPath, err := s.ExportJSON(ctx, "job-1")
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON Export
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, "job-1", fromJSON.Job.ID)
	assert.Equal(t, "Acme Corp", fromJSON.Job.Company.Name)
	assert.Len(t, fromJSON.Documents, 2)
	require.Len(t, fromJSON.Events, 1)
	assert.Equal(t, "Research complete", fromJSON.Events[0].Message)

	_, err = s.ExportJSON(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
