// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/equity-research/pkg/types"
)

// JobSummary is one row of the job list.
type JobSummary struct {
	ID        string         `json:"id" yaml:"id"`
	Company   types.Company  `json:"company" yaml:"company"`
	Phase     types.JobPhase `json:"phase" yaml:"phase"`
	CreatedAt string         `json:"created_at" yaml:"created_at"`
	UpdatedAt string         `json:"updated_at" yaml:"updated_at"`
}

// AnalystOutcome is the stored result of one analyst slot.
type AnalystOutcome struct {
	Kind         types.AnalystKind `json:"kind" yaml:"kind"`
	Outcome      types.Outcome     `json:"outcome" yaml:"outcome"`
	Error        string            `json:"error,omitempty" yaml:"error,omitempty"`
	StageErrors  []string          `json:"stage_errors,omitempty" yaml:"stage_errors,omitempty"`
	RawCount     int               `json:"raw_count" yaml:"raw_count"`
	CuratedCount int               `json:"curated_count" yaml:"curated_count"`
}

// JobRecord is a job with everything stored about it except documents
// and events.
type JobRecord struct {
	JobSummary `yaml:",inline"`
	Report     string                       `json:"report,omitempty" yaml:"report,omitempty"`
	References []string                     `json:"references,omitempty" yaml:"references,omitempty"`
	Transcript []string                     `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Outcomes   []AnalystOutcome             `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Briefings  map[types.AnalystKind]string `json:"briefings,omitempty" yaml:"briefings,omitempty"`
}

// Job loads the stored record for jobID. It returns ErrNotFound when the
// job does not exist.
func (s *Store) Job(ctx context.Context, jobID string) (*JobRecord, error) {
	rec := &JobRecord{}
	var (
		phase      string
		report     sql.NullString
		refs       sql.NullString
		transcript sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company, company_url, industry, hq_location, ticker, phase,
			report, refs, transcript, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID,
	).Scan(
		&rec.ID, &rec.Company.Name, &rec.Company.URL, &rec.Company.Industry,
		&rec.Company.HQLocation, &rec.Company.Ticker, &phase,
		&report, &refs, &transcript, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up job: %w", err)
	}
	rec.Phase = types.JobPhase(phase)
	rec.Report = report.String
	if refs.Valid {
		json.Unmarshal([]byte(refs.String), &rec.References)
	}
	if transcript.Valid {
		json.Unmarshal([]byte(transcript.String), &rec.Transcript)
	}

	if rec.Outcomes, err = s.outcomes(ctx, jobID); err != nil {
		return nil, err
	}
	if rec.Briefings, err = s.briefings(ctx, jobID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) outcomes(ctx context.Context, jobID string) ([]AnalystOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, outcome, error, stage_errors, raw_count, curated_count
		 FROM analyst_outcomes WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	byKind := make(map[types.AnalystKind]AnalystOutcome)
	for rows.Next() {
		var (
			o         AnalystOutcome
			kind      string
			outcome   string
			reason    sql.NullString
			stageErrs sql.NullString
		)
		if err := rows.Scan(&kind, &outcome, &reason, &stageErrs, &o.RawCount, &o.CuratedCount); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Kind = types.AnalystKind(kind)
		o.Outcome = types.Outcome(outcome)
		o.Error = reason.String
		if stageErrs.Valid {
			json.Unmarshal([]byte(stageErrs.String), &o.StageErrors)
		}
		byKind[o.Kind] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Table order, not storage order.
	var out []AnalystOutcome
	for _, k := range types.Kinds {
		if o, ok := byKind[k]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) briefings(ctx context.Context, jobID string) (map[types.AnalystKind]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, content FROM briefings WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying briefings: %w", err)
	}
	defer rows.Close()

	out := make(map[types.AnalystKind]string)
	for rows.Next() {
		var kind, content string
		if err := rows.Scan(&kind, &content); err != nil {
			return nil, fmt.Errorf("scanning briefing: %w", err)
		}
		out[types.AnalystKind(kind)] = content
	}
	return out, rows.Err()
}

// ListJobs returns the most recently created jobs first. A limit of zero
// uses the store default.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobSummary, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, company_url, industry, hq_location, ticker, phase, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var (
			j     JobSummary
			phase string
		)
		if err := rows.Scan(&j.ID, &j.Company.Name, &j.Company.URL, &j.Company.Industry,
			&j.Company.HQLocation, &j.Company.Ticker, &phase, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Phase = types.JobPhase(phase)
		out = append(out, j)
	}
	return out, rows.Err()
}

// Events returns the stored status events of a job in publish order.
func (s *Store) Events(ctx context.Context, jobID string) ([]types.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, message, result FROM status_events WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []types.StatusEvent
	for rows.Next() {
		var (
			status  string
			message sql.NullString
			result  sql.NullString
		)
		if err := rows.Scan(&status, &message, &result); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev := types.StatusEvent{JobID: jobID, Status: types.JobStatus(status), Message: message.String}
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &ev.Result); err != nil {
				return nil, fmt.Errorf("decoding event result: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DocumentQuery holds parameters for a document search.
type DocumentQuery struct {
	// Query is the FTS5 match expression over title and content. Empty
	// lists documents by score.
	Query string

	JobID string
	Kind  types.AnalystKind

	// CuratedOnly restricts results to documents that survived curation.
	CuratedOnly bool

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// DocumentHit is one stored document matched by a search.
type DocumentHit struct {
	JobID   string            `json:"job_id" yaml:"job_id"`
	Kind    types.AnalystKind `json:"kind" yaml:"kind"`
	URL     string            `json:"url" yaml:"url"`
	Curated bool              `json:"curated" yaml:"curated"`
	types.Document `yaml:",inline"`
}

// SearchDocuments finds stored documents. Full-text queries are ranked by
// FTS5 relevance; filter-only queries, and text queries on a build without
// FTS5, are ordered by score.
func (s *Store) SearchDocuments(ctx context.Context, q DocumentQuery) ([]DocumentHit, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = q.Query != "" && s.fts
	)
	switch {
	case useFTS:
		qb.WriteString(
			`SELECT d.job_id, d.kind, d.url, d.title, d.raw_content, d.query, d.score, d.curated
			FROM documents_fts
			JOIN documents d ON d.rowid = documents_fts.rowid
			WHERE documents_fts MATCH ?`)
		args = append(args, q.Query)
	case q.Query != "":
		qb.WriteString(
			`SELECT d.job_id, d.kind, d.url, d.title, d.raw_content, d.query, d.score, d.curated
			FROM documents d
			WHERE (d.title LIKE ? OR d.raw_content LIKE ?)`)
		like := "%" + q.Query + "%"
		args = append(args, like, like)
	default:
		qb.WriteString(
			`SELECT d.job_id, d.kind, d.url, d.title, d.raw_content, d.query, d.score, d.curated
			FROM documents d
			WHERE 1=1`)
	}
	if q.JobID != "" {
		qb.WriteString(` AND d.job_id = ?`)
		args = append(args, q.JobID)
	}
	if q.Kind != "" {
		qb.WriteString(` AND d.kind = ?`)
		args = append(args, string(q.Kind))
	}
	if q.CuratedOnly {
		qb.WriteString(` AND d.curated = 1`)
	}
	if useFTS {
		qb.WriteString(` ORDER BY documents_fts.rank, d.url`)
	} else {
		qb.WriteString(` ORDER BY d.score DESC, d.url`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentHit
	for rows.Next() {
		var (
			h       DocumentHit
			kind    string
			title   sql.NullString
			content sql.NullString
			query   sql.NullString
			score   sql.NullFloat64
		)
		if err := rows.Scan(&h.JobID, &kind, &h.URL, &title, &content, &query, &score, &h.Curated); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		h.Kind = types.AnalystKind(kind)
		h.Title = title.String
		h.RawContent = content.String
		h.Query = query.String
		h.Score = score.Float64
		out = append(out, h)
	}
	return out, rows.Err()
}
