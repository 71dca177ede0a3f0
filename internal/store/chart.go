package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ChartKey is the natural key of a chart within one database (music_id is
// already resolved).
type ChartKey struct {
	MusicID    int64
	PlayStyle  string
	Difficulty string
}

// NaturalChartKey is the cross-artifact natural key of a chart: the owning
// song's external id plus mode and tier. Two artifacts agree on this key
// even if their music_id allocation differed.
type NaturalChartKey struct {
	TextageID  string
	PlayStyle  string
	Difficulty string
}

// ChartFields is the upsertable portion of a chart row for one snapshot.
type ChartFields struct {
	MusicID    int64
	PlayStyle  string
	Difficulty string
	Level      int
	Notes      int
	Active     bool
}

// ChartActiveFlags returns each chart's pre-run active flag, captured before
// the reset step for change detection.
func ChartActiveFlags(ctx context.Context, q Querier) (map[ChartKey]bool, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT music_id, play_style, difficulty, is_active FROM chart")
	if err != nil {
		return nil, fmt.Errorf("query chart flags: %w", err)
	}
	defer rows.Close()

	flags := map[ChartKey]bool{}
	for rows.Next() {
		var key ChartKey
		var active int
		if err := rows.Scan(&key.MusicID, &key.PlayStyle, &key.Difficulty, &active); err != nil {
			return nil, fmt.Errorf("scan chart flags: %w", err)
		}
		flags[key] = active != 0
	}
	return flags, rows.Err()
}

// ResetChartActiveFlags clears the active flag on every chart row.
func ResetChartActiveFlags(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, "UPDATE chart SET is_active = 0")
	if err != nil {
		return fmt.Errorf("reset chart flags: %w", err)
	}
	return nil
}

// UpsertChart resolves the permanent chart_id for the chart's natural key,
// inserting on first observation. priorActive is the pre-reset active flag
// (nil for new rows). Same timestamp contract as UpsertMusic.
func UpsertChart(ctx context.Context, q Querier, f ChartFields, priorActive *bool, now string) (int64, bool, error) {
	var (
		chartID   int64
		level     int
		notes     int
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT chart_id, level, notes, updated_at
		FROM chart
		WHERE music_id = ? AND play_style = ? AND difficulty = ?
	`, f.MusicID, f.PlayStyle, f.Difficulty).Scan(&chartID, &level, &notes, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		res, err := q.ExecContext(ctx, `
			INSERT INTO chart (
				music_id, play_style, difficulty,
				level, notes, is_active,
				last_seen_at, created_at, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.MusicID, f.PlayStyle, f.Difficulty,
			f.Level, f.Notes, boolInt(f.Active),
			now, now, now,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert chart %d/%s/%s: %w",
				f.MusicID, f.PlayStyle, f.Difficulty, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert chart %d/%s/%s: %w",
				f.MusicID, f.PlayStyle, f.Difficulty, err)
		}
		return id, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select chart %d/%s/%s: %w",
			f.MusicID, f.PlayStyle, f.Difficulty, err)
	}

	changed := level != f.Level ||
		notes != f.Notes ||
		priorActive == nil ||
		*priorActive != f.Active

	if changed {
		updatedAt = now
	}

	_, err = q.ExecContext(ctx, `
		UPDATE chart SET
			level = ?,
			notes = ?,
			is_active = ?,
			last_seen_at = ?,
			updated_at = ?
		WHERE music_id = ? AND play_style = ? AND difficulty = ?
	`,
		f.Level, f.Notes, boolInt(f.Active),
		now, updatedAt,
		f.MusicID, f.PlayStyle, f.Difficulty,
	)
	if err != nil {
		return 0, false, fmt.Errorf("update chart %d/%s/%s: %w",
			f.MusicID, f.PlayStyle, f.Difficulty, err)
	}
	return chartID, changed, nil
}

// ChartKeyMap returns the full natural-key to chart_id mapping, joined
// through music so keys are comparable across artifacts.
func ChartKeyMap(ctx context.Context, q Querier) (map[NaturalChartKey]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.textage_id, c.play_style, c.difficulty, c.chart_id
		FROM chart c
		INNER JOIN music m ON m.music_id = c.music_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query chart key map: %w", err)
	}
	defer rows.Close()

	keyMap := map[NaturalChartKey]int64{}
	for rows.Next() {
		var key NaturalChartKey
		var chartID int64
		if err := rows.Scan(&key.TextageID, &key.PlayStyle, &key.Difficulty, &chartID); err != nil {
			return nil, fmt.Errorf("scan chart key map: %w", err)
		}
		keyMap[key] = chartID
	}
	return keyMap, rows.Err()
}
