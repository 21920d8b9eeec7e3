package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles workflow persistence in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflows table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			nodes         JSONB NOT NULL DEFAULT '{}',
			transitions   JSONB NOT NULL DEFAULT '[]',
			entry_node_id TEXT NOT NULL DEFAULT '',
			enabled       BOOLEAN NOT NULL DEFAULT FALSE,
			version       INT NOT NULL DEFAULT 1,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init workflows schema: %w", err)
	}
	return nil
}

// Get retrieves a workflow by id. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*Workflow, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, nodes, transitions, entry_node_id, enabled, version, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id)

	wf, err := scanWorkflow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListActive returns all enabled workflows.
func (r *Repository) ListActive(ctx context.Context) ([]Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, nodes, transitions, entry_node_id, enabled, version, created_at, updated_at
		FROM workflows WHERE enabled ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	defer rows.Close()

	active := []Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		active = append(active, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	return active, nil
}

// Upsert persists the workflow. The version column is bumped by the database
// on every conflicting write, so concurrent editors cannot hand out the same
// version twice. The passed workflow is updated with the stored version and
// timestamps.
func (r *Repository) Upsert(ctx context.Context, wf *Workflow) error {
	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	transitionsJSON, err := json.Marshal(wf.Transitions)
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO workflows (id, name, description, nodes, transitions, entry_node_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			nodes = EXCLUDED.nodes,
			transitions = EXCLUDED.transitions,
			entry_node_id = EXCLUDED.entry_node_id,
			enabled = EXCLUDED.enabled,
			version = workflows.version + 1,
			updated_at = NOW()
		RETURNING version, created_at, updated_at
	`, wf.ID, wf.Name, wf.Description, nodesJSON, transitionsJSON, wf.EntryNodeID, wf.Enabled).
		Scan(&wf.Version, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}
	return nil
}

// Delete removes a workflow by id, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanWorkflow(row pgxRow) (Workflow, error) {
	var wf Workflow
	var nodesJSON, transitionsJSON []byte

	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &nodesJSON, &transitionsJSON,
		&wf.EntryNodeID, &wf.Enabled, &wf.Version, &wf.CreatedAt, &wf.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Workflow{}, err
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("scan workflow: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(transitionsJSON, &wf.Transitions); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal transitions: %w", err)
	}
	return wf, nil
}
