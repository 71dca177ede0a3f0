package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"songmaster/internal/alias"
	"songmaster/internal/logger"
	"songmaster/internal/store"
	"songmaster/internal/textage"
)

type testSong struct {
	tag       string
	textageID string
	version   string
	genre     string
	artist    string
	title     string
	subtitle  string
	flags     int
	levels    map[int]int
	qualifier string
}

func makeTables(songs []testSong) *textage.Tables {
	t := &textage.Tables{
		Title: map[string][]any{},
		Data:  map[string][]any{},
		Act:   map[string][]any{},
		SourceHashes: map[string]string{
			textage.SourceTitleTbl: "a", textage.SourceDataTbl: "b", textage.SourceActTbl: "c",
		},
	}
	for _, s := range songs {
		t.Title[s.tag] = []any{
			s.version, s.textageID, float64(0), s.genre, s.artist, s.title, s.subtitle,
		}

		data := make([]any, 11)
		for i := range data {
			data[i] = float64(0)
		}
		act := make([]any, 24)
		for i := range act {
			act[i] = float64(0)
		}
		act[0] = float64(s.flags)
		for chartType, level := range s.levels {
			act[chartType*2+1] = float64(level)
			data[chartType] = float64(level * 100)
		}
		act[23] = s.qualifier
		t.Data[s.tag] = data
		t.Act[s.tag] = act
	}
	return t
}

func newTestEngine(at time.Time) *Engine {
	return New(logger.Nop(), FixedClock{Instant: at})
}

func openEngineStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuild_ActiveScopeAndDerivedAlias(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	tables := makeTables([]testSong{
		{tag: "titleA", textageID: "X1", version: "31", genre: "TRANCE",
			artist: "someone", title: "titleA", flags: 0x01,
			levels: map[int]int{4: 12}},
	})

	report, err := eng.Build(ctx, s.DB(), BuildParams{
		Tables: tables, SchemaVersion: "1",
	})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if report.MusicProcessed != 1 || report.ChartProcessed != len(ChartTypes) {
		t.Errorf("report = %+v", report)
	}

	var ac, inf int
	err = s.DB().QueryRowContext(ctx,
		"SELECT is_ac_active, is_inf_active FROM music WHERE textage_id = 'X1'",
	).Scan(&ac, &inf)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ac != 1 || inf != 0 {
		t.Errorf("flags = %d/%d, want 1/0", ac, inf)
	}

	var count int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM music_title_alias
		WHERE alias_scope = 'ac' AND alias = 'titlea' AND alias_type = 'official'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("official ac alias count = %d, want 1", count)
	}

	// Only the ANOTHER slot has a level; the rest exist but are inactive.
	var activeCharts int
	err = s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chart WHERE is_active = 1").Scan(&activeCharts)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if activeCharts != 1 {
		t.Errorf("active charts = %d, want 1", activeCharts)
	}
}

func TestBuild_DisappearedSongKeepsIdentity(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	both := makeTables([]testSong{
		{tag: "a", textageID: "X1", version: "31", genre: "g", artist: "x",
			title: "one", flags: 0x03, levels: map[int]int{4: 12, 9: 11}},
		{tag: "b", textageID: "X2", version: "31", genre: "g", artist: "x",
			title: "two", flags: 0x01, levels: map[int]int{4: 10}},
	})
	if _, err := eng.Build(ctx, s.DB(), BuildParams{Tables: both, SchemaVersion: "1"}); err != nil {
		t.Fatalf("first Build() failed: %v", err)
	}

	prevMusic, err := store.MusicKeyMap(ctx, s.DB())
	if err != nil {
		t.Fatalf("MusicKeyMap() failed: %v", err)
	}
	prevCharts, err := store.ChartKeyMap(ctx, s.DB())
	if err != nil {
		t.Fatalf("ChartKeyMap() failed: %v", err)
	}

	// X1 disappears from the snapshot entirely.
	later := newTestEngine(time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC))
	onlyB := makeTables([]testSong{
		{tag: "b", textageID: "X2", version: "31", genre: "g", artist: "x",
			title: "two", flags: 0x01, levels: map[int]int{4: 10}},
	})
	if _, err := later.Build(ctx, s.DB(), BuildParams{Tables: onlyB, SchemaVersion: "1"}); err != nil {
		t.Fatalf("second Build() failed: %v", err)
	}

	var ac, inf int
	err = s.DB().QueryRowContext(ctx,
		"SELECT is_ac_active, is_inf_active FROM music WHERE textage_id = 'X1'",
	).Scan(&ac, &inf)
	if err != nil {
		t.Fatalf("X1 row must be retained: %v", err)
	}
	if ac != 0 || inf != 0 {
		t.Errorf("X1 flags = %d/%d, want 0/0", ac, inf)
	}

	var activeX1Charts int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chart c
		INNER JOIN music m ON m.music_id = c.music_id
		WHERE m.textage_id = 'X1' AND c.is_active = 1
	`).Scan(&activeX1Charts)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if activeX1Charts != 0 {
		t.Errorf("X1 active charts = %d, want 0", activeX1Charts)
	}

	newMusic, err := store.MusicKeyMap(ctx, s.DB())
	if err != nil {
		t.Fatalf("MusicKeyMap() failed: %v", err)
	}
	for key, id := range prevMusic {
		if newMusic[key] != id {
			t.Errorf("music_id for %s changed: %d -> %d", key, id, newMusic[key])
		}
	}
	newCharts, err := store.ChartKeyMap(ctx, s.DB())
	if err != nil {
		t.Fatalf("ChartKeyMap() failed: %v", err)
	}
	for key, id := range prevCharts {
		if newCharts[key] != id {
			t.Errorf("chart_id for %+v changed: %d -> %d", key, id, newCharts[key])
		}
	}
}

func TestBuild_UnchangedSnapshotLeavesUpdatedAt(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()

	tables := makeTables([]testSong{
		{tag: "a", textageID: "X1", version: "31", genre: "g", artist: "x",
			title: "one", flags: 0x01, levels: map[int]int{4: 12}},
	})

	first := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	if _, err := first.Build(ctx, s.DB(), BuildParams{Tables: tables, SchemaVersion: "1"}); err != nil {
		t.Fatalf("first Build() failed: %v", err)
	}

	var firstUpdated string
	if err := s.DB().QueryRowContext(ctx,
		"SELECT updated_at FROM music WHERE textage_id = 'X1'").Scan(&firstUpdated); err != nil {
		t.Fatalf("query: %v", err)
	}

	second := newTestEngine(time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC))
	if _, err := second.Build(ctx, s.DB(), BuildParams{Tables: tables, SchemaVersion: "1"}); err != nil {
		t.Fatalf("second Build() failed: %v", err)
	}

	var secondUpdated, lastSeen string
	if err := s.DB().QueryRowContext(ctx,
		"SELECT updated_at, last_seen_at FROM music WHERE textage_id = 'X1'",
	).Scan(&secondUpdated, &lastSeen); err != nil {
		t.Fatalf("query: %v", err)
	}
	if secondUpdated != firstUpdated {
		t.Errorf("updated_at moved on identical snapshot: %s -> %s", firstUpdated, secondUpdated)
	}
	if lastSeen == firstUpdated {
		t.Error("last_seen_at must advance on every run")
	}

	var chartUpdated string
	if err := s.DB().QueryRowContext(ctx,
		"SELECT updated_at FROM chart WHERE play_style = 'SP' AND difficulty = 'ANOTHER'",
	).Scan(&chartUpdated); err != nil {
		t.Fatalf("query: %v", err)
	}
	if chartUpdated != firstUpdated {
		t.Errorf("chart updated_at moved on identical snapshot: %s", chartUpdated)
	}
}

func TestBuild_TitleQualifiers(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	tables := makeTables([]testSong{
		// Same display title, one active only in ac, one only in inf.
		{tag: "a", textageID: "X1", version: "31", genre: "g", artist: "x",
			title: "shared", flags: 0x01, levels: map[int]int{4: 12}},
		{tag: "b", textageID: "X2", version: "26", genre: "g", artist: "x",
			title: "shared", flags: 0x02, levels: map[int]int{4: 12}},
		// Explicit qualifier wins over the derived one.
		{tag: "c", textageID: "X3", version: "31", genre: "g", artist: "x",
			title: "solo", flags: 0x01, levels: map[int]int{4: 9},
			qualifier: "(2024)"},
	})
	if _, err := eng.Build(ctx, s.DB(), BuildParams{Tables: tables, SchemaVersion: "1"}); err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	want := map[string]string{"X1": "(AC)", "X2": "(INF)", "X3": "(2024)"}
	for textageID, qualifier := range want {
		var got string
		err := s.DB().QueryRowContext(ctx,
			"SELECT title_qualifier FROM music WHERE textage_id = ?", textageID,
		).Scan(&got)
		if err != nil {
			t.Fatalf("query %s: %v", textageID, err)
		}
		if got != qualifier {
			t.Errorf("qualifier for %s = %q, want %q", textageID, got, qualifier)
		}
	}
}

func TestBuild_SubtitleAndVersionMapping(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	tables := makeTables([]testSong{
		{tag: "a", textageID: "X1", version: "-35", genre: "g", artist: "x",
			title: "main", subtitle: "<span>sub</span>", flags: 0x01,
			levels: map[int]int{4: 12}},
	})
	if _, err := eng.Build(ctx, s.DB(), BuildParams{Tables: tables, SchemaVersion: "1"}); err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	var version, title, searchKey string
	err := s.DB().QueryRowContext(ctx,
		"SELECT version, title, title_search_key FROM music WHERE textage_id = 'X1'",
	).Scan(&version, &title, &searchKey)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if version != "SS" {
		t.Errorf("version = %q, want SS", version)
	}
	if title != "main sub" {
		t.Errorf("title = %q, want %q", title, "main sub")
	}
	if searchKey != "main sub" {
		t.Errorf("search key = %q", searchKey)
	}
}

func TestBuild_ManualAliasFlow(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	tables := makeTables([]testSong{
		{tag: "a", textageID: "X1", version: "31", genre: "g", artist: "x",
			title: "one", flags: 0x01, levels: map[int]int{4: 12}},
	})
	manual := []alias.ManualRow{
		// Redundant with the derived official alias: skipped, not fatal.
		{Line: 2, TextageID: "X1", Alias: "one", Scope: "ac", Type: "manual"},
		{Line: 3, TextageID: "X1", Alias: "the one", Scope: "ac", Type: "manual"},
	}

	report, err := eng.Build(ctx, s.DB(), BuildParams{
		Tables: tables, ManualAliases: manual, SchemaVersion: "1",
	})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if report.ManualAliases != 1 || report.SkippedManualRows != 1 {
		t.Errorf("report = %+v, want 1 inserted, 1 skipped", report)
	}

	var count int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM music_title_alias
		WHERE alias_scope = 'ac' AND alias = 'one'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("rows for (ac, one) = %d, want exactly 1", count)
	}
}

func TestBuild_IncompleteTagIgnored(t *testing.T) {
	s := openEngineStore(t)
	ctx := context.Background()
	eng := newTestEngine(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	tables := makeTables([]testSong{
		{tag: "a", textageID: "X1", version: "31", genre: "g", artist: "x",
			title: "one", flags: 0x01, levels: map[int]int{4: 12}},
		{tag: "ghost", textageID: "X9", version: "31", genre: "g", artist: "x",
			title: "ghost", flags: 0x01, levels: map[int]int{4: 12}},
	})
	delete(tables.Act, "ghost")

	report, err := eng.Build(ctx, s.DB(), BuildParams{Tables: tables, SchemaVersion: "1"})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if report.Ignored != 1 || report.MusicProcessed != 1 {
		t.Errorf("report = %+v, want 1 ignored, 1 processed", report)
	}
}
