package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/andresmejia3/docmask/internal/redactor"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store keeps the redaction audit trail in PostgreSQL.
type Store struct {
	mu   sync.Mutex // pgx.Conn is not safe for concurrent use
	conn *pgx.Conn
}

// Run is one redaction pass over a document.
type Run struct {
	ID         uuid.UUID
	DocumentID string
	Path       string
	Style      string
	Tokens     int
	Flagged    int
	Dense      int
	Rules      []string
	Output     string
	CreatedAt  time.Time
	Regions    []Region
}

// Region is a masked rectangle, stored as [x0, y0, x1, y1].
type Region struct {
	Location [4]int
	Source   string
	Token    int
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Location[0], r.Location[1], r.Location[2], r.Location[3])
}

// NewRun builds the audit record for a finished pass.
func NewRun(documentID, path, output string, rep *redactor.Report) *Run {
	run := &Run{
		ID:         uuid.New(),
		DocumentID: documentID,
		Path:       path,
		Style:      rep.Style.String(),
		Tokens:     rep.Tokens,
		Flagged:    rep.Classification.Count(),
		Dense:      rep.DenseRegions(),
		Rules:      rep.Classification.RuleNames(),
		Output:     output,
	}
	for _, reg := range rep.Regions {
		run.Regions = append(run.Regions, Region{
			Location: [4]int{reg.Rect.Min.X, reg.Rect.Min.Y, reg.Rect.Max.X, reg.Rect.Max.Y},
			Source:   reg.Source,
			Token:    reg.Token,
		})
	}
	return run
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the audit tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			last_redacted_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS redaction_runs (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			style TEXT NOT NULL,
			token_count INT NOT NULL,
			flagged_count INT NOT NULL,
			dense_count INT NOT NULL,
			rules TEXT[] NOT NULL DEFAULT '{}',
			output_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS masked_regions (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES redaction_runs(id) ON DELETE CASCADE,
			location INT[] NOT NULL,
			source TEXT NOT NULL,
			token_index INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS redaction_runs_document_id_idx ON redaction_runs (document_id);
		CREATE INDEX IF NOT EXISTS masked_regions_run_id_idx ON masked_regions (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureDocument registers the document. If it exists, the path and timestamp are refreshed.
func (s *Store) EnsureDocument(ctx context.Context, id, path string, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (id, path, width, height, last_redacted_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET last_redacted_at = NOW(), path = EXCLUDED.path
	`, id, path, width, height)
	return err
}

// InsertRun saves a run and its regions atomically. The document must exist.
func (s *Store) InsertRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rules := run.Rules
	if rules == nil {
		rules = []string{}
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO redaction_runs (id, document_id, style, token_count, flagged_count, dense_count, rules, output_path)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, run.ID.String(), run.DocumentID, run.Style, run.Tokens, run.Flagged, run.Dense, rules, run.Output).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, reg := range run.Regions {
		_, err := tx.Exec(ctx, `
			INSERT INTO masked_regions (run_id, location, source, token_index)
			VALUES ($1::uuid, $2, $3, $4)
		`, run.ID.String(), reg.Location[:], reg.Source, reg.Token)
		if err != nil {
			return fmt.Errorf("insert region: %w", err)
		}
	}
	return tx.Commit(ctx)
}

const runColumns = `r.id::text, r.document_id, d.path, r.style, r.token_count, r.flagged_count,
	r.dense_count, r.rules, r.output_path, r.created_at`

// ListRuns returns the most recent runs across all documents, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM redaction_runs r JOIN documents d ON d.id = r.document_id
		ORDER BY r.created_at DESC, r.id
		LIMIT $1
	`, limit)
}

// DocumentRuns returns every run of one document with its regions, newest first.
func (s *Store) DocumentRuns(ctx context.Context, documentID string) ([]Run, error) {
	runs, err := s.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM redaction_runs r JOIN documents d ON d.id = r.document_id
		WHERE r.document_id = $1
		ORDER BY r.created_at DESC, r.id
	`, documentID)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		regions, err := s.RunRegions(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Regions = regions
	}
	return runs, nil
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var id string
		if err := rows.Scan(&id, &r.DocumentID, &r.Path, &r.Style, &r.Tokens, &r.Flagged,
			&r.Dense, &r.Rules, &r.Output, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunRegions returns the regions masked by one run in painting order.
func (s *Store) RunRegions(ctx context.Context, runID uuid.UUID) ([]Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT location, source, token_index FROM masked_regions
		WHERE run_id = $1::uuid ORDER BY id
	`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var loc []int
		var reg Region
		if err := rows.Scan(&loc, &reg.Source, &reg.Token); err != nil {
			return nil, err
		}
		if len(loc) != 4 {
			return nil, fmt.Errorf("region has %d coordinates, want 4", len(loc))
		}
		copy(reg.Location[:], loc)
		out = append(out, reg)
	}
	return out, rows.Err()
}

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// GetRun loads a single run with its regions.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	runs, err := s.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM redaction_runs r JOIN documents d ON d.id = r.document_id
		WHERE r.id = $1::uuid
	`, id.String())
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	run := runs[0]
	if run.Regions, err = s.RunRegions(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS masked_regions CASCADE;
		DROP TABLE IF EXISTS redaction_runs CASCADE;
		DROP TABLE IF EXISTS documents CASCADE;
	`)
	return err
}
