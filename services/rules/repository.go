package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a PostgreSQL-backed rule store. List order is kept in an
// explicit position column; ReplaceAll rewrites the table inside a single
// transaction so concurrent readers never observe a half-applied swap.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the rules table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS automation_rules (
			id         TEXT PRIMARY KEY,
			position   INT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL DEFAULT 'automation',
			enabled    BOOLEAN NOT NULL DEFAULT TRUE,
			conditions JSONB NOT NULL DEFAULT '{"all":[],"any":[]}',
			actions    JSONB NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("init rules schema: %w", err)
	}
	return nil
}

// List retrieves all rules in position order.
func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, type, enabled, conditions, actions
		FROM automation_rules ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	ruleList := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		ruleList = append(ruleList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return ruleList, nil
}

// ReplaceAll swaps the entire rule list in one transaction.
func (r *Repository) ReplaceAll(ctx context.Context, ruleList []Rule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM automation_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for i, rule := range ruleList {
		if err := insertRule(ctx, tx, rule, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// ReplacePrefix swaps the rules whose ids start with prefix inside a single
// transaction, appending the fresh set after the highest surviving position.
// starts_with avoids LIKE-pattern interpretation of the prefix characters.
func (r *Repository) ReplacePrefix(ctx context.Context, prefix string, fresh []Rule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM automation_rules WHERE starts_with(id, $1)`, prefix); err != nil {
		return fmt.Errorf("clear rules with prefix %s: %w", prefix, err)
	}

	var tail int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), -1) FROM automation_rules`).Scan(&tail); err != nil {
		return fmt.Errorf("read tail position: %w", err)
	}
	for i, rule := range fresh {
		if err := insertRule(ctx, tx, rule, tail+1+i); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Add appends a manual rule after the current tail. An empty id is filled
// with a generated uuid; the derived-rule namespace is rejected.
func (r *Repository) Add(ctx context.Context, rule Rule) (*Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if IsDerivedID(rule.ID) {
		return nil, fmt.Errorf("rule id %q is reserved for workflow-derived rules", rule.ID)
	}

	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return nil, err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO automation_rules (id, position, name, type, enabled, conditions, actions)
		VALUES ($1, (SELECT COALESCE(MAX(position), -1) + 1 FROM automation_rules), $2, $3, $4, $5, $6)
	`, rule.ID, rule.Name, rule.Type, rule.Enabled, conditions, actions)
	if err != nil {
		return nil, fmt.Errorf("add rule: %w", err)
	}
	return &rule, nil
}

// Update applies a partial update to a rule. Returns nil, nil when the rule
// does not exist.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (*Rule, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, name, type, enabled, conditions, actions
		FROM automation_rules WHERE id = $1 FOR UPDATE
	`, id)
	rule, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	applyPatch(&rule, patch)
	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE automation_rules
		SET name = $2, type = $3, enabled = $4, conditions = $5, actions = $6
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Type, rule.Enabled, conditions, actions)
	if err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return &rule, nil
}

// Remove deletes a rule by id, reporting whether it existed.
func (r *Repository) Remove(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("remove rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanRule(row pgxRow) (Rule, error) {
	var rule Rule
	var conditionsJSON, actionsJSON []byte
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Type, &rule.Enabled, &conditionsJSON, &actionsJSON); err != nil {
		if err == pgx.ErrNoRows {
			return Rule{}, err
		}
		return Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return Rule{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
		return Rule{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	return rule, nil
}

func marshalRule(rule Rule) (conditions, actions []byte, err error) {
	conditions, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	actions, err = json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	return conditions, actions, nil
}

func insertRule(ctx context.Context, tx pgx.Tx, rule Rule, position int) error {
	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO automation_rules (id, position, name, type, enabled, conditions, actions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rule.ID, position, rule.Name, rule.Type, rule.Enabled, conditions, actions)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}
