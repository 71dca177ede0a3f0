package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"songmaster/internal/alias"
	"songmaster/internal/config"
	"songmaster/internal/engine"
	"songmaster/internal/logger"
	"songmaster/internal/release"
	"songmaster/internal/store"
	"songmaster/internal/textage"
	"songmaster/internal/verify"
)

// BuildResult is the success payload of the build command.
type BuildResult struct {
	Unchanged      bool   `json:"unchanged"`
	ArtifactPath   string `json:"artifact_path,omitempty"`
	ManifestPath   string `json:"manifest_path,omitempty"`
	ReleaseTag     string `json:"release_tag,omitempty"`
	MusicProcessed int    `json:"music_processed"`
	ChartProcessed int    `json:"chart_processed"`
	Ignored        int    `json:"ignored"`
	ActiveACMusic  int    `json:"active_ac_music"`
	ActiveINFMusic int    `json:"active_inf_music"`
}

func (r BuildResult) String() string {
	if r.Unchanged {
		return "✓ Sources unchanged, nothing to publish"
	}
	out := fmt.Sprintf("✓ Built %s (music=%d charts=%d ignored=%d active ac=%d inf=%d)",
		r.ArtifactPath, r.MusicProcessed, r.ChartProcessed, r.Ignored,
		r.ActiveACMusic, r.ActiveINFMusic)
	if r.ReleaseTag != "" {
		out += fmt.Sprintf("\n✓ Published as %s", r.ReleaseTag)
	}
	return out
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	var skipDownload bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch the latest score tables and rebuild the artifact",
		Long: `Fetch the Textage score tables, reconcile them into the SQLite artifact
and write the latest.json manifest.

The previous artifact is downloaded from the latest GitHub release first so
permanent ids carry over. If all three source tables hash identically to the
previous publish, the run stops without touching anything.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), rootOpts, skipDownload, cmd)
		},
	}

	cmd.Flags().BoolVar(&skipDownload, "skip-download", false,
		"build against the local artifact without downloading the previous release")

	return cmd
}

func runBuild(ctx context.Context, opts *RootOptions, skipDownload bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	settings, err := config.Load(opts.SettingsPath)
	if err != nil {
		_ = formatter.Error("SETTINGS", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load settings", err)
	}

	log, err := logger.New(settings.LogMode, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "init logger", err)
	}
	defer log.Sync()

	b := &builder{
		settings:  settings,
		log:       log,
		formatter: formatter,
		engine:    engine.New(log, nil),
	}
	if settings.Github.Owner != "" && settings.Github.Repo != "" {
		b.github = release.NewClient(
			settings.Github.Owner, settings.Github.Repo, os.Getenv("GITHUB_TOKEN"))
	}

	result, err := b.run(ctx, skipDownload)
	if err != nil {
		if alias.IsValidationError(err) || verify.IsCheckError(err) {
			_ = formatter.Error("VALIDATION", err.Error(), nil)
			return WrapExitError(ExitFailure, "build aborted", err)
		}
		_ = formatter.Error("BUILD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "build failed", err)
	}
	return formatter.Success(*result)
}

// builder carries one build's collaborators.
type builder struct {
	settings  *config.Settings
	log       *logger.Logger
	formatter *OutputFormatter
	engine    *engine.Engine
	github    *release.Client
}

func (b *builder) run(ctx context.Context, skipDownload bool) (*BuildResult, error) {
	outPath := b.settings.OutputDBPath
	assetUpdatedAt := ""

	var latest *release.Release
	if b.github != nil && !skipDownload {
		var err error
		latest, err = b.github.LatestRelease(ctx)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			updatedAt, ok, err := b.github.DownloadAsset(
				ctx, latest, b.settings.Github.AssetName, outPath)
			if err != nil {
				return nil, err
			}
			if ok {
				assetUpdatedAt = updatedAt
				b.log.Info("previous artifact downloaded",
					"tag", latest.TagName, "asset_updated_at", updatedAt)
			}
			if _, ok, err := b.github.DownloadAsset(
				ctx, latest, release.ManifestName, b.settings.ManifestPath); err != nil {
				return nil, err
			} else if ok {
				b.log.Info("previous manifest downloaded", "tag", latest.TagName)
			}
		}
	}

	tc := textage.NewClient(b.settings.Textage.BaseURL, b.settings.HTTPTimeout())
	sources, err := tc.FetchSources(ctx)
	if err != nil {
		return nil, err
	}
	freshHashes := sources.Hashes()

	prevManifest, err := release.LoadManifest(b.settings.ManifestPath)
	if err != nil {
		return nil, err
	}
	if release.SourcesUnchanged(prevManifest, freshHashes) {
		b.log.Info("source tables unchanged, skipping build")
		return &BuildResult{Unchanged: true}, nil
	}

	tables, err := textage.Parse(sources)
	if err != nil {
		return nil, err
	}

	var manualRows []alias.ManualRow
	if b.settings.ManualAliasCSVPath != "" {
		manualRows, err = alias.ReadManualCSVFile(b.settings.ManualAliasCSVPath)
		if err != nil {
			return nil, err
		}
	}

	// Build into a staging copy; the published artifact stays untouched
	// until every check has passed.
	nextPath := outPath + ".next"
	prevExists, err := copyIfExists(outPath, nextPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(nextPath)

	report, err := b.reconcile(ctx, nextPath, tables, manualRows, assetUpdatedAt)
	if err != nil {
		return nil, err
	}

	if prevExists {
		if err := b.checkStability(ctx, outPath, nextPath); err != nil {
			return nil, err
		}
	}
	if err := b.selfCheck(ctx, nextPath); err != nil {
		return nil, err
	}

	if err := os.Rename(nextPath, outPath); err != nil {
		return nil, fmt.Errorf("swap artifact: %w", err)
	}

	generatedAt := time.Now().UTC().Format("2006-01-02T15:04:05.999999Z")
	manifest, err := release.BuildManifest(
		outPath, b.settings.SchemaVersion, generatedAt, freshHashes)
	if err != nil {
		return nil, err
	}
	if err := release.WriteManifest(b.settings.ManifestPath, manifest); err != nil {
		return nil, err
	}

	result := &BuildResult{
		ArtifactPath:   outPath,
		ManifestPath:   b.settings.ManifestPath,
		MusicProcessed: report.MusicProcessed,
		ChartProcessed: report.ChartProcessed,
		Ignored:        report.Ignored,
		ActiveACMusic:  report.ActiveACMusic,
		ActiveINFMusic: report.ActiveINFMusic,
	}

	if b.settings.Github.UploadToRelease {
		if b.github == nil {
			return nil, fmt.Errorf("upload_to_release set but github.owner/repo missing")
		}
		tag, err := b.publish(ctx, outPath)
		if err != nil {
			return nil, err
		}
		result.ReleaseTag = tag
	}
	return result, nil
}

// reconcile runs the engine inside a single transaction on the staging copy.
func (b *builder) reconcile(ctx context.Context, path string, tables *textage.Tables, manualRows []alias.ManualRow, assetUpdatedAt string) (*engine.BuildReport, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	tx, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}

	report, err := b.engine.Build(ctx, tx, engine.BuildParams{
		Tables:         tables,
		ManualAliases:  manualRows,
		SchemaVersion:  b.settings.SchemaVersion,
		AssetUpdatedAt: assetUpdatedAt,
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit build: %w", err)
	}
	return report, nil
}

// checkStability compares the untouched previous artifact against the
// staging copy.
func (b *builder) checkStability(ctx context.Context, prevPath, nextPath string) error {
	prev, err := store.OpenReadOnly(prevPath)
	if err != nil {
		return err
	}
	defer prev.Close()
	next, err := store.OpenReadOnly(nextPath)
	if err != nil {
		return err
	}
	defer next.Close()

	policy := verify.MissingPolicy(b.settings.Stability.MissingPolicy)
	musicReport, err := verify.MusicIDStability(ctx, prev, next, policy)
	if err != nil {
		return err
	}
	chartReport, err := verify.ChartIDStability(ctx, prev, next, policy)
	if err != nil {
		return err
	}

	for _, missing := range musicReport.MissingInNew {
		b.log.Warn("published music key missing from candidate", "textage_id", missing)
	}
	for _, missing := range chartReport.MissingInNew {
		b.log.Warn("published chart key missing from candidate", "key", missing)
	}
	b.log.Info("identity permanence verified",
		"music_shared", musicReport.SharedTotal,
		"music_new", musicReport.NewOnlyTotal,
		"chart_shared", chartReport.SharedTotal,
		"chart_new", chartReport.NewOnlyTotal)
	return nil
}

func (b *builder) selfCheck(ctx context.Context, path string) error {
	db, err := store.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return verify.Schema(ctx, db, b.settings.SchemaVersion)
}

// publish creates a fresh date-tagged release and uploads the artifact and
// its manifest.
func (b *builder) publish(ctx context.Context, artifactPath string) (string, error) {
	tags, err := b.github.ListTags(ctx)
	if err != nil {
		return "", err
	}
	tag := release.NextTag(tags, time.Now())

	rel, err := b.github.CreateRelease(ctx, tag)
	if err != nil {
		return "", err
	}
	if err := b.github.UploadAsset(ctx, rel, b.settings.Github.AssetName, artifactPath); err != nil {
		return "", err
	}
	if err := b.github.UploadAsset(ctx, rel, release.ManifestName, b.settings.ManifestPath); err != nil {
		return "", err
	}
	b.log.Info("artifact published", "tag", tag)
	return tag, nil
}

// copyIfExists copies src to dst, reporting whether src existed.
func copyIfExists(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		os.Remove(dst)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create staging dir: %w", err)
		}
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return false, fmt.Errorf("copy %s: %w", dst, err)
	}
	return true, out.Sync()
}
