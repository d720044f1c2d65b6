package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// PostgresStore reads the interaction log from Postgres.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns a Postgres-backed
// InteractionStore implementation.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// CreateSchema provisions the interactions table. The table is owned by the
// external writer; this exists for self-contained deployments and tests.
func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `
                CREATE TABLE IF NOT EXISTS interactions (
                        id         BIGSERIAL PRIMARY KEY,
                        ts         TIMESTAMPTZ NOT NULL,
                        session_id TEXT NOT NULL DEFAULT '',
                        user_id    TEXT NOT NULL DEFAULT '',
                        kind       TEXT NOT NULL DEFAULT 'other',
                        text_in    TEXT NOT NULL DEFAULT '',
                        text_out   TEXT NOT NULL DEFAULT '',
                        status     TEXT NOT NULL DEFAULT 'pending',
                        metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
                );
                CREATE INDEX IF NOT EXISTS interactions_ts_idx ON interactions (ts);
                CREATE INDEX IF NOT EXISTS interactions_session_idx ON interactions (session_id, ts);
        `)
	return err
}

func (ps *PostgresStore) Recent(ctx context.Context, window time.Duration, limit int) ([]model.Interaction, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	query := `
                SELECT id, ts, session_id, user_id, kind, text_in, text_out, status, metadata::text
                FROM (
                        SELECT * FROM interactions
                        WHERE ($1::interval IS NULL OR ts >= now() - $1::interval)
                        ORDER BY ts DESC, id DESC
                        LIMIT $2
                ) recent
                ORDER BY ts ASC, id ASC;
        `
	var interval any
	if window > 0 {
		interval = window.String()
	}
	var rowCap any
	if limit > 0 {
		rowCap = limit
	}
	rows, err := ps.DB.Query(ctx, query, interval, rowCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func (ps *PostgresStore) BySession(ctx context.Context, sessionID string) ([]model.Interaction, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	query := `
                SELECT id, ts, session_id, user_id, kind, text_in, text_out, status, metadata::text
                FROM interactions
                WHERE session_id = $1
                ORDER BY ts ASC, id ASC;
        `
	rows, err := ps.DB.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func scanInteractions(rows pgx.Rows) ([]model.Interaction, error) {
	var out []model.Interaction
	for rows.Next() {
		var in model.Interaction
		var kind, status string
		if err := rows.Scan(&in.ID, &in.Timestamp, &in.SessionID, &in.UserID, &kind, &in.TextIn, &in.TextOut, &status, &in.Metadata); err != nil {
			return nil, err
		}
		in.Kind = model.Kind(kind)
		in.Status = model.Status(status)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() {
	if ps != nil && ps.DB != nil {
		ps.DB.Close()
	}
}
