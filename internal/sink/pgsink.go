package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pgInsert = `INSERT INTO verification_decisions
	(verification_id, session_id, origin, is_human, confidence, inference_time_ms, fallback, features, ts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// PGSink persists decisions to Postgres, one row per verification.
type PGSink struct {
	dsn string
	db  *sql.DB
}

func NewPGSink(dsn string) *PGSink { return &PGSink{dsn: dsn} }

// NewPGSinkWithDB wraps an existing handle; used by tests.
func NewPGSinkWithDB(db *sql.DB) *PGSink { return &PGSink{db: db} }

func (s *PGSink) Start(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if s.dsn == "" {
		return errors.New("pgsink: empty DSN")
	}
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("pgsink: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pgsink: ping: %w", err)
	}
	s.db = db
	return nil
}

func (s *PGSink) Enqueue(r Record) error {
	if s.db == nil {
		return errors.New("pgsink: not started")
	}
	// TODO: switch to COPY-based batching once decision volume warrants it.
	_, err := s.db.Exec(pgInsert,
		r.VerificationID, r.SessionID, r.Origin,
		r.IsHuman, r.Confidence, r.InferenceTimeMs, r.Fallback,
		pq.Array(r.Features), r.TS,
	)
	if err != nil {
		return fmt.Errorf("pgsink: insert: %w", err)
	}
	return nil
}

func (s *PGSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PGSink) Name() string { return "postgres" }
