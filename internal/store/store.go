package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"songmaster/internal/normalize"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - pre-versioned artifacts (may lack title_search_key / title_qualifier /
//     alias_scope columns)
// 1 - current schema
const currentSchemaVersion = 1

// Enumerated values enforced by schema CHECK constraints. These strings are
// part of the published artifact format.
const (
	ScopeAC  = "ac"
	ScopeINF = "inf"

	AliasTypeOfficial = "official"
	AliasTypeManual   = "manual"

	PlayStyleSP = "SP"
	PlayStyleDP = "DP"
)

// Difficulty tiers, in display order.
const (
	DifficultyBeginner    = "BEGINNER"
	DifficultyNormal      = "NORMAL"
	DifficultyHyper       = "HYPER"
	DifficultyAnother     = "ANOTHER"
	DifficultyLeggendaria = "LEGGENDARIA"
)

// Scopes lists the allowed alias/activity scopes.
var Scopes = []string{ScopeAC, ScopeINF}

// Querier is the subset of database operations shared by *sql.DB and
// *sql.Tx. Data-access functions in this package take a Querier so the build
// pipeline can run everything inside one transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns a song master SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens a song master database at the given path, applying
// pragmas and schema migrations. Idempotent: safe to call on an existing
// artifact downloaded from a previous release.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin starts the build transaction.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure. Used to convert raw constraint errors into build errors with the
// offending row attached.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB) error {
	// Migrations first: schema.sql indexes reference columns that version-0
	// artifacts may not have yet.
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	// Version-0 artifacts carry rows that predate title_search_key; derive
	// keys for them so historical rows stay searchable.
	if err := backfillSearchKeys(db); err != nil {
		return fmt.Errorf("backfill search keys: %w", err)
	}

	return nil
}

func backfillSearchKeys(db *sql.DB) error {
	rows, err := db.Query(
		"SELECT music_id, title FROM music WHERE title_search_key = ''")
	if err != nil {
		return err
	}
	defer rows.Close()

	type update struct {
		musicID int64
		key     string
	}
	var updates []update
	for rows.Next() {
		var id int64
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			return err
		}
		updates = append(updates, update{id, normalize.SearchKey(title)})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, err := db.Exec(
			"UPDATE music SET title_search_key = ? WHERE music_id = ?", u.key, u.musicID); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 upgrades artifacts published before columns title_search_key,
// title_qualifier, and alias_scope existed. New databases get everything
// from schema.sql; here we only patch tables that already exist.
func migrateToV1(db *sql.DB) error {
	steps := []struct {
		table, column, ddl string
	}{
		{"music", "title_search_key",
			"ALTER TABLE music ADD COLUMN title_search_key TEXT NOT NULL DEFAULT ''"},
		{"music", "title_qualifier",
			"ALTER TABLE music ADD COLUMN title_qualifier TEXT NOT NULL DEFAULT ''"},
		{"music_title_alias", "alias_scope",
			"ALTER TABLE music_title_alias ADD COLUMN alias_scope TEXT NOT NULL DEFAULT 'ac'"},
	}

	for _, step := range steps {
		exists, err := tableExists(db, step.table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		hasCol, err := columnExists(db, step.table, step.column)
		if err != nil {
			return err
		}
		if hasCol {
			continue
		}
		if _, err := db.Exec(step.ddl); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", step.table, step.column, err)
		}
	}

	// Pre-scope alias uniqueness indexes conflict with the scoped ones.
	for _, ddl := range []string{
		"DROP INDEX IF EXISTS uq_music_title_alias_alias",
		"DROP INDEX IF EXISTS uq_music_title_alias_textage_alias",
	} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var one int
	err := db.QueryRow(
		"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
