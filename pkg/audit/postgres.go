package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresRecorder persists the audit trail to PostgreSQL via database/sql.
// The trail lives in its own table and often its own database, separate from
// the graph stores, so it uses a plain connection rather than the graph pool.
type PostgresRecorder struct {
	db *sql.DB
}

// OpenPostgresRecorder connects to PostgreSQL with the given DSN and ensures
// the audit table exists.
func OpenPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}

	r := &PostgresRecorder{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresRecorder wraps an existing database handle.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			edge_key TEXT NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			session_id TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensuring audit schema: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	query := `
		INSERT INTO audit_events (id, event_type, edge_key, score, session_id, occurred_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		string(e.Type),
		e.EdgeKey,
		e.Score,
		e.SessionID,
		e.OccurredAt,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("recording audit event %s: %w", e.ID, err)
	}
	return nil
}

func (r *PostgresRecorder) List(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, edge_key, score, session_id, occurred_at, detail
		FROM audit_events
		WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if f.Type != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argNum)
		args = append(args, string(f.Type))
		argNum++
	}
	if f.EdgeKey != "" {
		query += fmt.Sprintf(" AND edge_key = $%d", argNum)
		args = append(args, f.EdgeKey)
		argNum++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argNum)
		args = append(args, f.Since)
		argNum++
	}

	query += " ORDER BY occurred_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			eventType string
			occurred  time.Time
		)
		if err := rows.Scan(&e.ID, &eventType, &e.EdgeKey, &e.Score, &e.SessionID, &occurred, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.OccurredAt = occurred
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

var _ Recorder = (*PostgresRecorder)(nil)
