// Package archive persists final intelligence reports to Postgres so they
// outlive the session store's TTL. Archiving is best-effort: a failed write
// is logged, never surfaced to the conversation path.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nightjarlabs/nightjar/pkg/logger"
	"github.com/nightjarlabs/nightjar/pkg/report"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
	id               BIGSERIAL PRIMARY KEY,
	session_id       TEXT NOT NULL,
	scam_type        TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	total_messages   INTEGER NOT NULL,
	duration_seconds INTEGER NOT NULL,
	payload          JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertReportSQL = `
INSERT INTO reports (session_id, scam_type, confidence, total_messages, duration_seconds, payload)
VALUES ($1, $2, $3, $4, $5, $6)`

// Archive writes reports into a Postgres table through a pgx pool.
type Archive struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// New connects to Postgres and ensures the reports table exists.
func New(ctx context.Context, dsn string, log *logger.Logger) (*Archive, error) {
	if log == nil {
		log = logger.Nop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure reports table: %w", err)
	}
	return &Archive{pool: pool, log: log.WithComponent("archive")}, nil
}

// Save inserts one report. The full report is kept as jsonb alongside the
// queryable summary columns.
func (a *Archive) Save(ctx context.Context, r report.FinalReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.SessionID, err)
	}

	_, err = a.pool.Exec(ctx, insertReportSQL,
		r.SessionID,
		r.ScamType,
		r.ConfidenceLevel,
		r.TotalMessagesExchanged,
		r.EngagementDurationSeconds,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.SessionID, err)
	}

	a.log.Info().
		Str("session_id", r.SessionID).
		Str("scam_type", r.ScamType).
		Msg("report archived")
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}
