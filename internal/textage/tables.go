package textage

import (
	"fmt"
	"sort"
	"strconv"
)

// Canonical source document names. Used as keys in source hash maps and in
// the published manifest; renaming them breaks manifest comparison.
const (
	SourceTitleTbl = "titletbl.js"
	SourceDataTbl  = "datatbl.js"
	SourceActTbl   = "actbl.js"
)

// titletbl row layout.
const (
	titleColVersion  = 0
	titleColID       = 1
	titleColGenre    = 3
	titleColArtist   = 4
	titleColTitle    = 5
	titleColSubtitle = 6
)

// actbl row layout: index 0 holds the availability bit flags, the level for
// chart type N sits at N*2+1, and index 23 optionally carries an explicit
// display qualifier.
const (
	actFlagAC  = 0x01
	actFlagINF = 0x02

	actColQualifier = 23
)

// Tables holds the three parsed Textage tables, keyed by song tag, plus the
// SHA-256 digests of the raw documents they were parsed from.
type Tables struct {
	Title map[string][]any
	Data  map[string][]any
	Act   map[string][]any

	// SourceHashes maps document name to hex SHA-256 of the raw bytes.
	SourceHashes map[string]string
}

// SongRow is one titletbl entry joined with its actbl availability flags.
// All text fields are raw source values; display cleanup and search-key
// derivation happen downstream.
type SongRow struct {
	Tag       string
	TextageID string
	Version   string
	Genre     string
	Artist    string
	Title     string
	Subtitle  string
	ACActive  bool
	INFActive bool
	// Qualifier is the explicit display qualifier from actbl, when present.
	Qualifier string
}

// Tags returns the titletbl song tags in sorted order. Sorting makes id
// allocation deterministic on a fresh database.
func (t *Tables) Tags() []string {
	tags := make([]string, 0, len(t.Title))
	for tag := range t.Title {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Complete reports whether the tag is present in all three tables. Songs
// missing from datatbl or actbl cannot be reconciled and are skipped.
func (t *Tables) Complete(tag string) bool {
	if _, ok := t.Data[tag]; !ok {
		return false
	}
	_, ok := t.Act[tag]
	return ok
}

// Song decodes the titletbl and actbl rows for a tag.
func (t *Tables) Song(tag string) (*SongRow, error) {
	row, ok := t.Title[tag]
	if !ok {
		return nil, fmt.Errorf("tag %q not in titletbl", tag)
	}
	if len(row) <= titleColTitle {
		return nil, fmt.Errorf("titletbl row for %q too short: %d cells", tag, len(row))
	}
	act, ok := t.Act[tag]
	if !ok {
		return nil, fmt.Errorf("tag %q not in actbl", tag)
	}
	if len(act) == 0 {
		return nil, fmt.Errorf("actbl row for %q is empty", tag)
	}

	flags, err := hexInt(act[0])
	if err != nil {
		return nil, fmt.Errorf("actbl flags for %q: %w", tag, err)
	}

	song := &SongRow{
		Tag:       tag,
		TextageID: cellString(row[titleColID]),
		Version:   cellString(row[titleColVersion]),
		Genre:     cellString(row[titleColGenre]),
		Artist:    cellString(row[titleColArtist]),
		Title:     cellString(row[titleColTitle]),
		ACActive:  flags&actFlagAC != 0,
		INFActive: flags&actFlagINF != 0,
	}
	if len(row) > titleColSubtitle {
		song.Subtitle = cellString(row[titleColSubtitle])
	}
	if len(act) > actColQualifier {
		if q, ok := act[actColQualifier].(string); ok {
			song.Qualifier = q
		}
	}
	return song, nil
}

// ChartSlot returns the level and note count for one chart type of a song.
// The level cell is a hex digit in actbl; a level of zero means the chart is
// not currently offered.
func (t *Tables) ChartSlot(tag string, chartType int) (level, notes int, err error) {
	act, ok := t.Act[tag]
	if !ok {
		return 0, 0, fmt.Errorf("tag %q not in actbl", tag)
	}
	data, ok := t.Data[tag]
	if !ok {
		return 0, 0, fmt.Errorf("tag %q not in datatbl", tag)
	}

	levelIdx := chartType*2 + 1
	if levelIdx >= len(act) {
		return 0, 0, fmt.Errorf("actbl row for %q has no cell %d", tag, levelIdx)
	}
	if chartType >= len(data) {
		return 0, 0, fmt.Errorf("datatbl row for %q has no cell %d", tag, chartType)
	}

	level, err = hexInt(act[levelIdx])
	if err != nil {
		return 0, 0, fmt.Errorf("level for %q chart %d: %w", tag, chartType, err)
	}
	switch n := data[chartType].(type) {
	case float64:
		notes = int(n)
	case string:
		parsed, perr := strconv.Atoi(n)
		if perr != nil {
			return 0, 0, fmt.Errorf("notes for %q chart %d: %w", tag, chartType, perr)
		}
		notes = parsed
	default:
		return 0, 0, fmt.Errorf("notes for %q chart %d: unsupported type %T", tag, chartType, n)
	}
	return level, notes, nil
}

// hexInt interprets a table cell the way the upstream JS does: numbers are
// taken as-is, strings are parsed as base-16 digits ("A" == 10, "12" == 18).
func hexInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case string:
		n, err := strconv.ParseInt(val, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("parse hex cell %q: %w", val, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported hex cell type %T", v)
	}
}

// cellString renders a table cell as a string. Numbers print without a
// decimal part, matching the upstream convention for version columns.
func cellString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
