package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Meta is the single logical metadata row of an artifact.
type Meta struct {
	SchemaVersion  string
	AssetUpdatedAt string
	GeneratedAt    string
}

// ReplaceMeta truncates and rewrites the meta table. The table holds exactly
// one row and is never historized.
func ReplaceMeta(ctx context.Context, q Querier, m Meta) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM meta"); err != nil {
		return fmt.Errorf("truncate meta: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO meta (schema_version, asset_updated_at, generated_at)
		VALUES (?, ?, ?)
	`, m.SchemaVersion, m.AssetUpdatedAt, m.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	return nil
}

// ReadMeta returns the current meta row, or nil if none has been written.
func ReadMeta(ctx context.Context, q Querier) (*Meta, error) {
	var m Meta
	err := q.QueryRowContext(ctx, `
		SELECT schema_version, asset_updated_at, generated_at
		FROM meta
		ORDER BY rowid DESC
		LIMIT 1
	`).Scan(&m.SchemaVersion, &m.AssetUpdatedAt, &m.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return &m, nil
}
