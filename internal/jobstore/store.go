// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobstore persists research jobs, their status events and the
// documents each analyst gathered in a SQLite database. Documents are
// indexed with FTS5 so past research can be searched.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	defaultMaxResults = 20
	defaultExportDir  = "reports"
)

// ErrNotFound is returned when a job id is not in the store.
var ErrNotFound = errors.New("job not found")

// Store manages the job database.
type Store struct {
	db         *sql.DB
	exportDir  string
	maxResults int

	// fts is false when go-sqlite3 was built without FTS5; document
	// search then falls back to substring matching.
	fts bool
}

// Open opens or creates the database at cfg.Path and ensures the schema
// exists.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; status sinks for several jobs share the handle.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:         db,
		exportDir:  cfg.ExportDir,
		maxResults: cfg.MaxResults,
	}
	if s.exportDir == "" {
		s.exportDir = defaultExportDir
	}
	if s.maxResults <= 0 {
		s.maxResults = defaultMaxResults
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			company TEXT NOT NULL DEFAULT '',
			company_url TEXT NOT NULL DEFAULT '',
			industry TEXT NOT NULL DEFAULT '',
			hq_location TEXT NOT NULL DEFAULT '',
			ticker TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			report TEXT,
			refs TEXT,
			transcript TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analyst_outcomes (
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			stage_errors TEXT,
			raw_count INTEGER NOT NULL DEFAULT 0,
			curated_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (job_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS briefings (
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (job_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT,
			raw_content TEXT,
			query TEXT,
			score REAL,
			curated INTEGER NOT NULL DEFAULT 0,
			UNIQUE (job_id, kind, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_job ON documents(job_id, kind)`,
		`CREATE TABLE IF NOT EXISTS status_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			result TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_job ON status_events(job_id, seq)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='documents_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE documents_fts USING fts5(title, raw_content, content=documents, content_rowid=rowid)`); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return nil
		}
		return fmt.Errorf("creating FTS table: %w", err)
	}
	ftsStatements := []string{
		`CREATE TRIGGER documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, title, raw_content) VALUES (new.rowid, new.title, new.raw_content);
		END`,
		`CREATE TRIGGER documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, title, raw_content) VALUES('delete', old.rowid, old.title, old.raw_content);
		END`,
		`CREATE TRIGGER documents_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, title, raw_content) VALUES('delete', old.rowid, old.title, old.raw_content);
			INSERT INTO documents_fts(rowid, title, raw_content) VALUES (new.rowid, new.title, new.raw_content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateJob inserts a job in the created phase.
func (s *Store) CreateJob(ctx context.Context, jobID string, c types.Company) error {
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, company, company_url, industry, hq_location, ticker, phase, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, c.Name, c.URL, c.Industry, c.HQLocation, c.Ticker,
		string(types.PhaseCreated), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", jobID, err)
	}
	return nil
}

// RecordPhase stores the current phase of a job. A job that was never
// created gets a bare row so its history is not lost.
func (s *Store) RecordPhase(ctx context.Context, jobID string, phase types.JobPhase) error {
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, phase, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase=excluded.phase, updated_at=excluded.updated_at`,
		jobID, string(phase), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("recording phase %s for %s: %w", phase, jobID, err)
	}
	return nil
}

// Send appends a status event to the job's event log. It makes the store
// usable as a status bus sink.
func (s *Store) Send(ctx context.Context, ev types.StatusEvent) error {
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("encoding event result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO status_events (job_id, status, message, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.JobID, string(ev.Status), ev.Message, string(result), now(),
	)
	if err != nil {
		return fmt.Errorf("inserting status event: %w", err)
	}
	return nil
}

// SaveResult stores the outcome of every analyst slot, the raw and curated
// documents, the briefings and the report of st in one transaction.
// Saving the same job again replaces what was stored before.
func (s *Store) SaveResult(ctx context.Context, st *state.ResearchState) error {
	jobID := st.JobID()
	c := st.Company()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var report sql.NullString
	if r, ok := st.Report(); ok {
		report = sql.NullString{String: r, Valid: true}
	}
	refs, _ := json.Marshal(st.References())
	transcript, _ := json.Marshal(st.Transcript().Messages())
	ts := now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, company, company_url, industry, hq_location, ticker, phase, report, refs, transcript, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			company=excluded.company, company_url=excluded.company_url,
			industry=excluded.industry, hq_location=excluded.hq_location,
			ticker=excluded.ticker, phase=excluded.phase, report=excluded.report,
			refs=excluded.refs, transcript=excluded.transcript,
			updated_at=excluded.updated_at`,
		jobID, c.Name, c.URL, c.Industry, c.HQLocation, c.Ticker,
		string(st.Phase()), report, string(refs), string(transcript), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upserting job: %w", err)
	}

	for _, table := range []string{"analyst_outcomes", "briefings", "documents"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE job_id = ?`, jobID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	outcomeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO analyst_outcomes (job_id, kind, outcome, error, stage_errors, raw_count, curated_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing outcome insert: %w", err)
	}
	defer outcomeStmt.Close()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (job_id, kind, url, title, raw_content, query, score, curated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer docStmt.Close()

	for _, k := range types.Kinds {
		outcome, reason := st.Outcome(k)
		raw := st.Raw(k)
		curated := st.Curated(k)
		stageErrs, _ := json.Marshal(st.StageErrors(k))

		if _, err := outcomeStmt.ExecContext(ctx,
			jobID, string(k), string(outcome), reason, string(stageErrs), len(raw), len(curated),
		); err != nil {
			return fmt.Errorf("inserting outcome %s: %w", k, err)
		}

		for _, url := range raw.URLs() {
			d := raw[url]
			_, isCurated := curated[url]
			if _, err := docStmt.ExecContext(ctx,
				jobID, string(k), url, d.Title, d.RawContent, d.Query, d.Score, isCurated,
			); err != nil {
				return fmt.Errorf("inserting document %s: %w", url, err)
			}
		}

		if text, ok := st.Briefing(k); ok {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO briefings (job_id, kind, content) VALUES (?, ?, ?)`,
				jobID, string(k), text,
			); err != nil {
				return fmt.Errorf("inserting briefing %s: %w", k, err)
			}
		}
	}

	return tx.Commit()
}
