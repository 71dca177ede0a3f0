package store

import (
	"context"
	"fmt"
)

// AliasTriple identifies one alias row by content.
type AliasTriple struct {
	TextageID string
	Scope     string
	Alias     string
}

// AliasRow is one insertable music_title_alias row.
type AliasRow struct {
	TextageID string
	Scope     string
	Alias     string
	Type      string
}

// TypeCount pairs an alias_type value with its row count.
type TypeCount struct {
	Type  string
	Count int
}

// DeleteAllAliases empties music_title_alias ahead of a full rebuild. The
// alias table is derived data: both origins are reseeded every run.
func DeleteAllAliases(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM music_title_alias"); err != nil {
		return fmt.Errorf("delete aliases: %w", err)
	}
	return nil
}

// InsertAlias inserts one alias row. A UNIQUE violation surfaces as-is so
// callers can classify it (see IsUniqueViolation).
func InsertAlias(ctx context.Context, q Querier, a AliasRow, now string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO music_title_alias (
			textage_id, alias_scope, alias, alias_type, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.TextageID, a.Scope, a.Alias, a.Type, now, now)
	return err
}

// OfficialAliasTriples returns the set of derived official aliases, used to
// detect redundant manual rows.
func OfficialAliasTriples(ctx context.Context, q Querier) (map[AliasTriple]struct{}, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT textage_id, alias_scope, alias
		FROM music_title_alias
		WHERE alias_type = ?
	`, AliasTypeOfficial)
	if err != nil {
		return nil, fmt.Errorf("query official aliases: %w", err)
	}
	defer rows.Close()

	triples := map[AliasTriple]struct{}{}
	for rows.Next() {
		var t AliasTriple
		if err := rows.Scan(&t.TextageID, &t.Scope, &t.Alias); err != nil {
			return nil, fmt.Errorf("scan official alias: %w", err)
		}
		triples[t] = struct{}{}
	}
	return triples, rows.Err()
}

// CountAliases counts alias rows for a (scope, type) pair.
func CountAliases(ctx context.Context, q Querier, scope, aliasType string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM music_title_alias
		WHERE alias_scope = ? AND alias_type = ?
	`, scope, aliasType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count aliases (%s/%s): %w", scope, aliasType, err)
	}
	return count, nil
}

// CountOrphanAliases counts alias rows whose textage_id has no music row.
func CountOrphanAliases(ctx context.Context, q Querier) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM music_title_alias a
		LEFT JOIN music m ON m.textage_id = a.textage_id
		WHERE m.textage_id IS NULL
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orphan aliases: %w", err)
	}
	return count, nil
}

// FirstDuplicateScopeAlias returns one (scope, alias) pair that appears on
// more than one row, if any. The unique index should make this impossible;
// the consistency checker verifies anyway.
func FirstDuplicateScopeAlias(ctx context.Context, q Querier) (scope, alias string, found bool, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT alias_scope, alias, COUNT(*) AS c
		FROM music_title_alias
		GROUP BY alias_scope, alias
		HAVING c > 1
		LIMIT 1
	`)
	if err != nil {
		return "", "", false, fmt.Errorf("query duplicate aliases: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var count int
		if err := rows.Scan(&scope, &alias, &count); err != nil {
			return "", "", false, fmt.Errorf("scan duplicate alias: %w", err)
		}
		return scope, alias, true, nil
	}
	return "", "", false, rows.Err()
}

// InvalidAliasTypes returns counts of alias rows whose type is outside the
// allowed set.
func InvalidAliasTypes(ctx context.Context, q Querier) ([]TypeCount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT alias_type, COUNT(*) AS c
		FROM music_title_alias
		WHERE alias_type NOT IN (?, ?)
		GROUP BY alias_type
		ORDER BY alias_type
	`, AliasTypeOfficial, AliasTypeManual)
	if err != nil {
		return nil, fmt.Errorf("query invalid alias types: %w", err)
	}
	defer rows.Close()

	var result []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan invalid alias type: %w", err)
		}
		result = append(result, tc)
	}
	return result, rows.Err()
}

// CountMissingOfficial counts music rows active in scope that lack their
// derived official alias.
func CountMissingOfficial(ctx context.Context, q Querier, scope string) (int, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return 0, err
	}
	var count int
	err = q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM music m
		LEFT JOIN music_title_alias a
		  ON a.textage_id = m.textage_id
		 AND a.alias_type = ?
		 AND a.alias_scope = ?
		WHERE m.%s = 1
		  AND a.alias_id IS NULL
	`, column), AliasTypeOfficial, scope).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count missing official aliases (%s): %w", scope, err)
	}
	return count, nil
}
