package verify

import (
	"context"
	"fmt"

	"songmaster/internal/store"
)

// Schema validates the finished artifact's schema and minimal data
// constraints via PRAGMA introspection, so a published file stands on its
// own even when opened by something other than this tool.
func Schema(ctx context.Context, q store.Querier, expectedSchemaVersion string) error {
	notNull := []struct{ table, column string }{
		{"music", "textage_id"},
		{"music", "title_qualifier"},
		{"music", "title_search_key"},
		{"music_title_alias", "textage_id"},
		{"music_title_alias", "alias_scope"},
		{"music_title_alias", "alias"},
		{"music_title_alias", "alias_type"},
	}
	for _, c := range notNull {
		if err := assertNotNullColumn(ctx, q, c.table, c.column); err != nil {
			return err
		}
	}

	uniques := []struct {
		table   string
		columns []string
	}{
		{"music", []string{"textage_id"}},
		{"chart", []string{"music_id", "play_style", "difficulty"}},
		{"music_title_alias", []string{"alias_scope", "alias"}},
	}
	for _, u := range uniques {
		ok, err := hasUniqueIndex(ctx, q, u.table, u.columns)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s unique index on %v is missing", u.table, u.columns)
		}
	}

	indexes := []struct{ table, index string }{
		{"music", "idx_music_title_search_key"},
		{"music_title_alias", "idx_music_title_alias_textage_id"},
		{"music_title_alias", "uq_music_title_alias_scope_alias"},
		{"music_title_alias", "idx_music_title_alias_scope_alias"},
		{"music_title_alias", "uq_music_title_alias_textage_scope_alias"},
	}
	for _, i := range indexes {
		if err := assertIndexExists(ctx, q, i.table, i.index); err != nil {
			return err
		}
	}

	if err := assertQualifierShape(ctx, q); err != nil {
		return err
	}
	if err := assertCollisionQualifiers(ctx, q); err != nil {
		return err
	}

	if _, err := Integrity(ctx, q); err != nil {
		return err
	}

	meta, err := store.ReadMeta(ctx, q)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("meta.schema_version not found")
	}
	if expectedSchemaVersion != "" && meta.SchemaVersion != expectedSchemaVersion {
		return fmt.Errorf("meta.schema_version mismatch: %s != %s",
			meta.SchemaVersion, expectedSchemaVersion)
	}
	return nil
}

func assertNotNullColumn(ctx context.Context, q store.Querier, table, column string) error {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scan table_info(%s): %w", table, err)
		}
		if name == column {
			if notNull != 1 {
				return fmt.Errorf("%s.%s must be NOT NULL", table, column)
			}
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return fmt.Errorf("column not found: %s.%s", table, column)
}

func indexColumns(ctx context.Context, q store.Querier, index string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", index))
	if err != nil {
		return nil, fmt.Errorf("index_info(%s): %w", index, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("scan index_info(%s): %w", index, err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

type indexEntry struct {
	name   string
	unique bool
}

func listIndexes(ctx context.Context, q store.Querier, table string) ([]indexEntry, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("index_list(%s): %w", table, err)
	}
	defer rows.Close()

	var entries []indexEntry
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("scan index_list(%s): %w", table, err)
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1})
	}
	return entries, rows.Err()
}

func hasUniqueIndex(ctx context.Context, q store.Querier, table string, expected []string) (bool, error) {
	entries, err := listIndexes(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.unique {
			continue
		}
		columns, err := indexColumns(ctx, q, e.name)
		if err != nil {
			return false, err
		}
		if equalStrings(columns, expected) {
			return true, nil
		}
	}
	return false, nil
}

func assertIndexExists(ctx context.Context, q store.Querier, table, index string) error {
	entries, err := listIndexes(ctx, q, table)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.name == index {
			return nil
		}
	}
	return fmt.Errorf("index not found: %s", index)
}

// Qualifiers are either empty or fully parenthesized; a stray half-paren
// means the resolution step misfired.
func assertQualifierShape(ctx context.Context, q store.Querier) error {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM music
		WHERE title_qualifier <> ''
		  AND (INSTR(title_qualifier, '(') > 0 OR INSTR(title_qualifier, ')') > 0)
		  AND (SUBSTR(title_qualifier, 1, 1) <> '(' OR SUBSTR(title_qualifier, -1, 1) <> ')')
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("qualifier shape check: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("title_qualifier format mismatch detected: %d", count)
	}
	return nil
}

// Rows sharing a display title while active in exactly one scope must carry
// a qualifier, otherwise their display names are ambiguous.
func assertCollisionQualifiers(ctx context.Context, q store.Querier) error {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM music m
		INNER JOIN (
			SELECT title
			FROM music
			GROUP BY title
			HAVING COUNT(textage_id) > 1
		) dup ON dup.title = m.title
		WHERE m.title_qualifier = ''
		  AND (
		       (m.is_ac_active = 1 AND m.is_inf_active = 0)
		    OR (m.is_ac_active = 0 AND m.is_inf_active = 1)
		  )
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("collision qualifier check: %w", err)
	}
	if count > 0 {
		return fmt.Errorf(
			"title collision rows with single-scope activity must have title_qualifier: %d",
			count)
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
