package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/apicore/domain/variable"
	json "github.com/goccy/go-json"
)

// VariableStore implements ports.VariableStore using SQLite.
// Values are stored as JSON so numbers and booleans keep their type.
type VariableStore struct {
	db *DB
}

// NewVariableStore creates a new variable store.
func NewVariableStore(db *DB) *VariableStore {
	return &VariableStore{db: db}
}

// Load returns every variable of a scope.
func (s *VariableStore) Load(ctx context.Context, scope variable.Scope) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM variables WHERE scope = ?`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode variable %s: %w", name, err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

// Set stores or replaces one variable.
func (s *VariableStore) Set(ctx context.Context, scope variable.Scope, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode variable %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variables (scope, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(scope), name, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

// Delete removes one variable.
func (s *VariableStore) Delete(ctx context.Context, scope variable.Scope, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE scope = ? AND name = ?`, string(scope), name)
	return err
}

// Clear removes every variable of a scope.
func (s *VariableStore) Clear(ctx context.Context, scope variable.Scope) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE scope = ?`, string(scope))
	return err
}
