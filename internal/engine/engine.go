package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"songmaster/internal/alias"
	"songmaster/internal/logger"
	"songmaster/internal/normalize"
	"songmaster/internal/store"
	"songmaster/internal/textage"
	"songmaster/internal/verify"
)

// Version tag the upstream tables use for the substream-only era.
const versionTagSS = "-35"

// Engine reconciles one Textage snapshot into a database.
type Engine struct {
	log   *logger.Logger
	clock Clock
}

// New builds an Engine. A nil clock selects the system clock.
func New(log *logger.Logger, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{log: log, clock: clock}
}

// BuildParams carries one build's inputs.
type BuildParams struct {
	Tables        *textage.Tables
	ManualAliases []alias.ManualRow

	SchemaVersion string
	// AssetUpdatedAt records when the previous artifact was published.
	// Empty means no previous artifact; the build timestamp is used.
	AssetUpdatedAt string
}

// BuildReport summarizes one reconciliation pass.
type BuildReport struct {
	RunID          string
	MusicProcessed int
	ChartProcessed int
	Ignored        int

	OfficialAliases   int
	ManualAliases     int
	SkippedManualRows int
	ActiveACMusic     int
	ActiveINFMusic    int
}

// Build runs the full reconciliation inside the caller's transaction:
// capture prior flags, reset, mark from the snapshot, resolve qualifiers,
// rebuild aliases, check integrity and stamp meta. Any error leaves the
// transaction for the caller to roll back.
func (e *Engine) Build(ctx context.Context, q store.Querier, params BuildParams) (*BuildReport, error) {
	report := &BuildReport{RunID: uuid.NewString()}
	log := e.log.With("run_id", report.RunID)

	now := e.clock.Now()
	nowJST := jstISO(now)
	nowUTC := utcISO(now)

	priorMusic, err := store.ActiveFlags(ctx, q)
	if err != nil {
		return nil, err
	}
	priorChart, err := store.ChartActiveFlags(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := store.ResetMusicActiveFlags(ctx, q); err != nil {
		return nil, err
	}
	if err := store.ResetChartActiveFlags(ctx, q); err != nil {
		return nil, err
	}

	explicitQualifiers := map[string]string{}
	for _, tag := range params.Tables.Tags() {
		if !params.Tables.Complete(tag) {
			report.Ignored++
			continue
		}
		song, err := params.Tables.Song(tag)
		if err != nil {
			return nil, fmt.Errorf("song %q: %w", tag, err)
		}

		musicID, err := e.upsertSong(ctx, q, song, priorMusic, nowJST)
		if err != nil {
			return nil, err
		}
		report.MusicProcessed++

		if qualifier := normalize.Display(song.Qualifier); qualifier != "" {
			explicitQualifiers[song.TextageID] = qualifier
		}

		for _, ct := range ChartTypes {
			level, notes, err := params.Tables.ChartSlot(tag, ct.Type)
			if err != nil {
				return nil, fmt.Errorf("chart %q %s/%s: %w", tag, ct.PlayStyle, ct.Difficulty, err)
			}
			key := store.ChartKey{MusicID: musicID, PlayStyle: ct.PlayStyle, Difficulty: ct.Difficulty}
			var prior *bool
			if p, ok := priorChart[key]; ok {
				prior = &p
			}
			_, _, err = store.UpsertChart(ctx, q, store.ChartFields{
				MusicID:    musicID,
				PlayStyle:  ct.PlayStyle,
				Difficulty: ct.Difficulty,
				Level:      level,
				Notes:      notes,
				Active:     level > 0,
			}, prior, nowJST)
			if err != nil {
				return nil, err
			}
			report.ChartProcessed++
		}
	}
	log.Info("snapshot reconciled",
		"music", report.MusicProcessed,
		"charts", report.ChartProcessed,
		"ignored", report.Ignored)

	if err := e.resolveQualifiers(ctx, q, explicitQualifiers); err != nil {
		return nil, err
	}

	official, manualReport, err := alias.Rebuild(ctx, q, params.ManualAliases, nowUTC)
	if err != nil {
		return nil, err
	}
	report.OfficialAliases = official
	report.ManualAliases = manualReport.Inserted
	report.SkippedManualRows = len(manualReport.Skipped)
	for _, skipped := range manualReport.Skipped {
		log.Warn("redundant manual alias skipped",
			"line", skipped.Line,
			"textage_id", skipped.TextageID,
			"scope", skipped.Scope,
			"alias", skipped.Alias)
	}

	summary, err := verify.Integrity(ctx, q)
	if err != nil {
		return nil, err
	}
	report.ActiveACMusic = summary.ActiveACMusic
	report.ActiveINFMusic = summary.ActiveINFMusic
	log.Info("alias table rebuilt",
		"official", official,
		"manual", manualReport.Inserted,
		"skipped", report.SkippedManualRows)

	assetUpdatedAt := params.AssetUpdatedAt
	if assetUpdatedAt == "" {
		assetUpdatedAt = nowUTC
	}
	err = store.ReplaceMeta(ctx, q, store.Meta{
		SchemaVersion:  params.SchemaVersion,
		AssetUpdatedAt: assetUpdatedAt,
		GeneratedAt:    nowUTC,
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// upsertSong maps one source row onto the music table. The display title
// absorbs the subtitle cell, and the search key derives from the finished
// display title.
func (e *Engine) upsertSong(ctx context.Context, q store.Querier, song *textage.SongRow, priorMusic map[string]store.Flags, nowJST string) (int64, error) {
	version := song.Version
	if version == versionTagSS {
		version = "SS"
	}

	title := normalize.Display(song.Title)
	if subtitle := normalize.Display(song.Subtitle); subtitle != "" {
		title = title + " " + subtitle
	}

	var prior *store.Flags
	if p, ok := priorMusic[song.TextageID]; ok {
		prior = &p
	}
	musicID, _, err := store.UpsertMusic(ctx, q, store.MusicFields{
		TextageID:      song.TextageID,
		Version:        version,
		Title:          title,
		TitleSearchKey: normalize.SearchKey(title),
		Artist:         normalize.Display(song.Artist),
		Genre:          normalize.Display(song.Genre),
		Active:         store.Flags{AC: song.ACActive, INF: song.INFActive},
	}, prior, nowJST)
	if err != nil {
		return 0, err
	}
	return musicID, nil
}

// resolveQualifiers applies the display-qualifier rules: an explicit
// upstream qualifier wins; otherwise rows sharing a display title while
// active in exactly one scope get "(AC)" or "(INF)"; everything else is
// cleared.
func (e *Engine) resolveQualifiers(ctx context.Context, q store.Querier, explicit map[string]string) error {
	rows, err := store.QualifierRows(ctx, q)
	if err != nil {
		return err
	}

	titleCounts := map[string]int{}
	for _, row := range rows {
		titleCounts[row.Title]++
	}

	for _, row := range rows {
		resolved := ""
		switch {
		case explicit[row.TextageID] != "":
			resolved = explicit[row.TextageID]
		case titleCounts[row.Title] > 1 && row.Active.AC && !row.Active.INF:
			resolved = "(AC)"
		case titleCounts[row.Title] > 1 && !row.Active.AC && row.Active.INF:
			resolved = "(INF)"
		}
		if row.Qualifier != resolved {
			if err := store.SetTitleQualifier(ctx, q, row.MusicID, resolved); err != nil {
				return err
			}
		}
	}
	return nil
}
