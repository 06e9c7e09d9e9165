package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/apicore/domain/field"
	json "github.com/goccy/go-json"
)

// FieldStore implements ports.FieldStore using SQLite.
type FieldStore struct {
	db *DB
}

// NewFieldStore creates a new field store.
func NewFieldStore(db *DB) *FieldStore {
	return &FieldStore{db: db}
}

// LoadAll returns every endpoint's field set.
func (s *FieldStore) LoadAll(ctx context.Context) (map[string]field.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT endpoint_key, fields FROM field_definitions`)
	if err != nil {
		return nil, fmt.Errorf("query field definitions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]field.Set)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		set := make(field.Set)
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", key, err)
		}
		out[key] = set
	}
	return out, rows.Err()
}

// Save replaces the field set of an endpoint.
func (s *FieldStore) Save(ctx context.Context, endpointKey string, set field.Set) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_definitions (endpoint_key, fields, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(endpoint_key) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, endpointKey, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

// Delete removes the field set of an endpoint.
func (s *FieldStore) Delete(ctx context.Context, endpointKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM field_definitions WHERE endpoint_key = ?`, endpointKey)
	return err
}
