package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL with property bags stored as
// jsonb. It is the intended durable plane: writes survive process restarts
// and counter increments happen inside a single UPDATE statement.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the node and edge tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			edge_type TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (edge_type, from_id, to_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges (from_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring graph schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertNode(ctx context.Context, n Node) error {
	props, err := json.Marshal(n.Props)
	if err != nil {
		return fmt.Errorf("marshaling node %s props: %w", n.ID, err)
	}

	query := `
		INSERT INTO graph_nodes (id, label, props)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET label = $2, props = $3
	`
	if _, err := s.db.Exec(ctx, query, n.ID, string(n.Label), props); err != nil {
		return fmt.Errorf("upserting node %s: %w", n.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetNode(ctx context.Context, id string) (*Node, error) {
	query := `SELECT id, label, props FROM graph_nodes WHERE id = $1`
	return scanNode(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) UpsertEdge(ctx context.Context, e Edge) error {
	props, err := json.Marshal(e.Props)
	if err != nil {
		return fmt.Errorf("marshaling edge %s props: %w", e.Key, err)
	}

	query := `
		INSERT INTO graph_edges (edge_type, from_id, to_id, props)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (edge_type, from_id, to_id) DO UPDATE SET props = $4
	`
	if _, err := s.db.Exec(ctx, query, string(e.Key.Type), e.Key.FromID, e.Key.ToID, props); err != nil {
		return fmt.Errorf("upserting edge %s: %w", e.Key, err)
	}
	return nil
}

func (s *PostgresStore) GetEdge(ctx context.Context, key EdgeKey) (*Edge, error) {
	query := `
		SELECT props FROM graph_edges
		WHERE edge_type = $1 AND from_id = $2 AND to_id = $3
	`
	var props []byte
	err := s.db.QueryRow(ctx, query, string(key.Type), key.FromID, key.ToID).Scan(&props)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting edge %s: %w", key, err)
	}

	e := Edge{Key: key}
	if err := json.Unmarshal(props, &e.Props); err != nil {
		return nil, fmt.Errorf("unmarshaling edge %s props: %w", key, err)
	}
	return &e, nil
}

func (s *PostgresStore) UpdateEdgeProps(ctx context.Context, key EdgeKey, props map[string]any) error {
	patch, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshaling edge %s patch: %w", key, err)
	}

	query := `
		UPDATE graph_edges SET props = props || $4::jsonb
		WHERE edge_type = $1 AND from_id = $2 AND to_id = $3
	`
	tag, err := s.db.Exec(ctx, query, string(key.Type), key.FromID, key.ToID, patch)
	if err != nil {
		return fmt.Errorf("updating edge %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementEdgeCounter(ctx context.Context, key EdgeKey, field string, delta int64) (int64, error) {
	// The increment and readback happen in one statement, so concurrent
	// callers serialize on the row lock and every increment is reflected.
	query := `
		UPDATE graph_edges
		SET props = jsonb_set(props, ARRAY[$4],
			to_jsonb(COALESCE((props->>$4)::bigint, 0) + $5))
		WHERE edge_type = $1 AND from_id = $2 AND to_id = $3
		RETURNING (props->>$4)::bigint
	`
	var next int64
	err := s.db.QueryRow(ctx, query, string(key.Type), key.FromID, key.ToID, field, delta).Scan(&next)
	if err == pgx.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing %s on edge %s: %w", field, key, err)
	}
	return next, nil
}

func (s *PostgresStore) DeleteEdge(ctx context.Context, key EdgeKey) error {
	query := `
		DELETE FROM graph_edges
		WHERE edge_type = $1 AND from_id = $2 AND to_id = $3
	`
	if _, err := s.db.Exec(ctx, query, string(key.Type), key.FromID, key.ToID); err != nil {
		return fmt.Errorf("deleting edge %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) QueryConnected(ctx context.Context, fromID string, maxFanout int, fn func(Node, Edge) error) error {
	query := `
		SELECT e.edge_type, e.from_id, e.to_id, e.props,
			n.id, n.label, n.props
		FROM graph_edges e
		JOIN graph_nodes n ON n.id = e.to_id
		WHERE e.from_id = $1
		ORDER BY e.edge_type, e.from_id, e.to_id
	`
	rows, err := s.db.Query(ctx, query, fromID)
	if err != nil {
		return fmt.Errorf("listing edges of %s: %w", fromID, err)
	}
	defer rows.Close()

	streamed := 0
	for rows.Next() {
		if maxFanout > 0 && streamed >= maxFanout {
			return ErrFanoutTruncated
		}
		var (
			edgeType, fID, tID, nodeID, label string
			edgeProps, nodeProps              []byte
		)
		if err := rows.Scan(&edgeType, &fID, &tID, &edgeProps, &nodeID, &label, &nodeProps); err != nil {
			return fmt.Errorf("scanning connected row: %w", err)
		}

		e := Edge{Key: EdgeKey{Type: EdgeType(edgeType), FromID: fID, ToID: tID}}
		if err := json.Unmarshal(edgeProps, &e.Props); err != nil {
			return fmt.Errorf("unmarshaling edge %s props: %w", e.Key, err)
		}
		n := Node{ID: nodeID, Label: NodeLabel(label)}
		if err := json.Unmarshal(nodeProps, &n.Props); err != nil {
			return fmt.Errorf("unmarshaling node %s props: %w", n.ID, err)
		}

		if err := fn(n, e); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
		streamed++
	}
	return rows.Err()
}

func (s *PostgresStore) ScanEdges(ctx context.Context, t EdgeType, fn func(Edge) error) error {
	query := `
		SELECT from_id, to_id, props FROM graph_edges
		WHERE edge_type = $1
		ORDER BY from_id, to_id
	`
	rows, err := s.db.Query(ctx, query, string(t))
	if err != nil {
		return fmt.Errorf("scanning %s edges: %w", t, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fromID, toID string
			props        []byte
		)
		if err := rows.Scan(&fromID, &toID, &props); err != nil {
			return fmt.Errorf("scanning edge row: %w", err)
		}
		e := Edge{Key: EdgeKey{Type: t, FromID: fromID, ToID: toID}}
		if err := json.Unmarshal(props, &e.Props); err != nil {
			return fmt.Errorf("unmarshaling edge %s props: %w", e.Key, err)
		}
		if err := fn(e); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanNode(row pgx.Row) (*Node, error) {
	var (
		n     Node
		label string
		props []byte
	)
	err := row.Scan(&n.ID, &label, &props)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning node: %w", err)
	}
	n.Label = NodeLabel(label)
	if err := json.Unmarshal(props, &n.Props); err != nil {
		return nil, fmt.Errorf("unmarshaling node %s props: %w", n.ID, err)
	}
	return &n, nil
}

var _ Store = (*PostgresStore)(nil)
