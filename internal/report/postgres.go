package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists reports in a single interview_reports table, keyed
// by interview identifier. Saving the same identifier twice updates the row
// in place.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn, verifies the connection,
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("report: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("report: ping postgres: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS interview_reports (
    interview_id TEXT PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    report       JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_interview_reports_candidate
    ON interview_reports (candidate_id, ended_at DESC);`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("report: migrate schema: %w", err)
	}
	return nil
}

// Save upserts rep and returns its interview identifier.
func (s *PostgresStore) Save(ctx context.Context, rep *SessionReport) (string, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}
	const q = `
INSERT INTO interview_reports (interview_id, candidate_id, ended_at, report)
VALUES ($1, $2, $3, $4)
ON CONFLICT (interview_id)
DO UPDATE SET report = EXCLUDED.report, ended_at = EXCLUDED.ended_at, updated_at = now()`
	if _, err := s.db.Exec(ctx, q, rep.InterviewID, rep.CandidateID, rep.EndedAt, data); err != nil {
		return "", fmt.Errorf("report: upsert %s: %w", rep.InterviewID, err)
	}
	return rep.InterviewID, nil
}

// Recent returns the most recent reports for a candidate, newest first.
func (s *PostgresStore) Recent(ctx context.Context, candidateID string, limit int) ([]SessionReport, error) {
	if limit < 1 {
		limit = 10
	}
	const q = `
SELECT report FROM interview_reports
WHERE candidate_id = $1
ORDER BY ended_at DESC
LIMIT $2`
	rows, err := s.db.Query(ctx, q, candidateID, limit)
	if err != nil {
		return nil, fmt.Errorf("report: query recent: %w", err)
	}
	reports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionReport, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return SessionReport{}, err
		}
		var rep SessionReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			return SessionReport{}, err
		}
		return rep, nil
	})
	if err != nil {
		return nil, fmt.Errorf("report: collect recent: %w", err)
	}
	return reports, nil
}

// Ping verifies the database connection. Used as a readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
