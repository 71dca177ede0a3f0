package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Flags is the per-scope availability of a music row.
type Flags struct {
	AC  bool
	INF bool
}

// MusicFields is the upsertable portion of a music row for one snapshot.
type MusicFields struct {
	TextageID      string
	Version        string
	Title          string
	TitleSearchKey string
	Artist         string
	Genre          string
	Active         Flags
}

// QualifierRow is the slice of a music row needed for display-qualifier
// resolution.
type QualifierRow struct {
	MusicID   int64
	TextageID string
	Title     string
	Active    Flags
	Qualifier string
}

// ActiveFlags returns the current scope flags of every music row, keyed by
// textage_id. The sync engine captures this before the reset step so change
// detection can compare against pre-run state.
func ActiveFlags(ctx context.Context, q Querier) (map[string]Flags, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT textage_id, is_ac_active, is_inf_active FROM music")
	if err != nil {
		return nil, fmt.Errorf("query music flags: %w", err)
	}
	defer rows.Close()

	flags := map[string]Flags{}
	for rows.Next() {
		var id string
		var ac, inf int
		if err := rows.Scan(&id, &ac, &inf); err != nil {
			return nil, fmt.Errorf("scan music flags: %w", err)
		}
		flags[id] = Flags{AC: ac != 0, INF: inf != 0}
	}
	return flags, rows.Err()
}

// ResetMusicActiveFlags clears both scope flags on every music row. Part of
// the reset-then-mark reconciliation; updated_at is left alone, change
// detection in UpsertMusic works against pre-reset flags.
func ResetMusicActiveFlags(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		"UPDATE music SET is_ac_active = 0, is_inf_active = 0")
	if err != nil {
		return fmt.Errorf("reset music flags: %w", err)
	}
	return nil
}

// UpsertMusic resolves the permanent music_id for f.TextageID, inserting a
// new row on first observation. prior carries the row's scope flags as they
// were before this run's reset (nil for rows that did not exist).
//
// last_seen_at is always advanced; updated_at moves only when a stored field
// actually changed. Returns the music_id and whether anything changed.
func UpsertMusic(ctx context.Context, q Querier, f MusicFields, prior *Flags, now string) (int64, bool, error) {
	var (
		musicID   int64
		version   string
		title     string
		searchKey string
		artist    string
		genre     string
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT music_id, version, title, title_search_key, artist, genre, updated_at
		FROM music
		WHERE textage_id = ?
	`, f.TextageID).Scan(&musicID, &version, &title, &searchKey, &artist, &genre, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		res, err := q.ExecContext(ctx, `
			INSERT INTO music (
				textage_id, version, title, title_search_key, artist, genre,
				is_ac_active, is_inf_active,
				last_seen_at, created_at, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.TextageID, f.Version, f.Title, f.TitleSearchKey, f.Artist, f.Genre,
			boolInt(f.Active.AC), boolInt(f.Active.INF),
			now, now, now,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert music %s: %w", f.TextageID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert music %s: %w", f.TextageID, err)
		}
		return id, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select music %s: %w", f.TextageID, err)
	}

	changed := version != f.Version ||
		title != f.Title ||
		searchKey != f.TitleSearchKey ||
		artist != f.Artist ||
		genre != f.Genre ||
		prior == nil ||
		*prior != f.Active

	if changed {
		updatedAt = now
	}

	_, err = q.ExecContext(ctx, `
		UPDATE music SET
			version = ?,
			title = ?,
			title_search_key = ?,
			artist = ?,
			genre = ?,
			is_ac_active = ?,
			is_inf_active = ?,
			last_seen_at = ?,
			updated_at = ?
		WHERE textage_id = ?
	`,
		f.Version, f.Title, f.TitleSearchKey, f.Artist, f.Genre,
		boolInt(f.Active.AC), boolInt(f.Active.INF),
		now, updatedAt, f.TextageID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("update music %s: %w", f.TextageID, err)
	}
	return musicID, changed, nil
}

// MusicKeyMap returns textage_id to permanent music_id for every music row.
func MusicKeyMap(ctx context.Context, q Querier) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT textage_id, music_id FROM music")
	if err != nil {
		return nil, fmt.Errorf("query music key map: %w", err)
	}
	defer rows.Close()

	keyMap := map[string]int64{}
	for rows.Next() {
		var textageID string
		var musicID int64
		if err := rows.Scan(&textageID, &musicID); err != nil {
			return nil, fmt.Errorf("scan music key map: %w", err)
		}
		keyMap[textageID] = musicID
	}
	return keyMap, rows.Err()
}

// TextageIDSet returns the set of known textage ids, used for orphan checks
// on alias ingestion.
func TextageIDSet(ctx context.Context, q Querier) (map[string]struct{}, error) {
	keyMap, err := MusicKeyMap(ctx, q)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keyMap))
	for id := range keyMap {
		set[id] = struct{}{}
	}
	return set, nil
}

// CountActiveMusic counts music rows active in the given scope.
func CountActiveMusic(ctx context.Context, q Querier, scope string) (int, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return 0, err
	}
	var count int
	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM music WHERE %s = 1", column),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active music (%s): %w", scope, err)
	}
	return count, nil
}

// QualifierRows returns every music row's qualifier-resolution slice in
// music_id order.
func QualifierRows(ctx context.Context, q Querier) ([]QualifierRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT music_id, textage_id, title, is_ac_active, is_inf_active, title_qualifier
		FROM music
		ORDER BY music_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query qualifier rows: %w", err)
	}
	defer rows.Close()

	var result []QualifierRow
	for rows.Next() {
		var r QualifierRow
		var ac, inf int
		if err := rows.Scan(&r.MusicID, &r.TextageID, &r.Title, &ac, &inf, &r.Qualifier); err != nil {
			return nil, fmt.Errorf("scan qualifier row: %w", err)
		}
		r.Active = Flags{AC: ac != 0, INF: inf != 0}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SetTitleQualifier stores a resolved display qualifier.
func SetTitleQualifier(ctx context.Context, q Querier, musicID int64, qualifier string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE music SET title_qualifier = ? WHERE music_id = ?", qualifier, musicID)
	if err != nil {
		return fmt.Errorf("set title qualifier for %d: %w", musicID, err)
	}
	return nil
}

// ActiveMusicTitles returns (textage_id, title_search_key) for every music
// row active in the given scope, in music_id order. Feeds official alias
// derivation.
func ActiveMusicTitles(ctx context.Context, q Querier, scope string) ([][2]string, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT textage_id, title_search_key
		FROM music
		WHERE %s = 1
		ORDER BY music_id
	`, column))
	if err != nil {
		return nil, fmt.Errorf("query active titles (%s): %w", scope, err)
	}
	defer rows.Close()

	var result [][2]string
	for rows.Next() {
		var textageID, key string
		if err := rows.Scan(&textageID, &key); err != nil {
			return nil, fmt.Errorf("scan active title: %w", err)
		}
		result = append(result, [2]string{textageID, key})
	}
	return result, rows.Err()
}

func scopeColumn(scope string) (string, error) {
	switch scope {
	case ScopeAC:
		return "is_ac_active", nil
	case ScopeINF:
		return "is_inf_active", nil
	default:
		return "", fmt.Errorf("unknown scope %q", scope)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
