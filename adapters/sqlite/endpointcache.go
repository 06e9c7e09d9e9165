package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/apicore/domain/endpoint"
	json "github.com/goccy/go-json"
)

// EndpointCache implements ports.LocalEndpointCache using SQLite.
type EndpointCache struct {
	db *DB
}

// NewEndpointCache creates a new local endpoint cache.
func NewEndpointCache(db *DB) *EndpointCache {
	return &EndpointCache{db: db}
}

// Load returns the cached collection. An empty table is an empty collection.
func (c *EndpointCache) Load(ctx context.Context) (endpoint.Collection, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, definition FROM endpoints`)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	out := make(endpoint.Collection)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		var e endpoint.Endpoint
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode endpoint %s: %w", key, err)
		}
		out[key] = e
	}
	return out, rows.Err()
}

// Store replaces the cached collection in a single transaction.
func (c *EndpointCache) Store(ctx context.Context, coll endpoint.Collection) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM endpoints`); err != nil {
		return fmt.Errorf("clear endpoints: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, key := range coll.Keys() {
		raw, err := json.Marshal(coll[key])
		if err != nil {
			return fmt.Errorf("encode endpoint %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO endpoints (key, definition, updated_at) VALUES (?, ?, ?)`,
			key, string(raw), now,
		); err != nil {
			return fmt.Errorf("insert endpoint %s: %w", key, err)
		}
	}

	return tx.Commit()
}
