package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"songmaster/internal/release"
	"songmaster/internal/store"
	"songmaster/internal/verify"
)

// ValidateResult holds artifact validation results.
type ValidateResult struct {
	Valid           bool   `json:"valid"`
	ArtifactPath    string `json:"artifact_path"`
	ManifestChecked bool   `json:"manifest_checked"`
	ActiveACMusic   int    `json:"active_ac_music"`
	ActiveINFMusic  int    `json:"active_inf_music"`
	OfficialAliases int    `json:"official_aliases"`
	ManualAliases   int    `json:"manual_aliases"`
}

func (r ValidateResult) String() string {
	return fmt.Sprintf("✓ %s valid (active ac=%d inf=%d, aliases official=%d manual=%d)",
		r.ArtifactPath, r.ActiveACMusic, r.ActiveINFMusic,
		r.OfficialAliases, r.ManualAliases)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaVersion string
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "validate <artifact.sqlite>",
		Short: "Validate a finished artifact",
		Long: `Validate an artifact's schema, indexes and data consistency without
building anything. With --manifest, also check the manifest's digest and
size against the file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], schemaVersion, manifestPath, cmd)
		},
	}

	cmd.Flags().StringVar(&schemaVersion, "schema-version", "1", "expected meta.schema_version")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest to check against the artifact")

	return cmd
}

func runValidate(opts *RootOptions, artifactPath, schemaVersion, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	db, err := store.OpenReadOnly(artifactPath)
	if err != nil {
		_ = formatter.Error("OPEN", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open artifact", err)
	}
	defer db.Close()

	formatter.VerboseLog("Checking schema and data constraints in %s", artifactPath)
	if err := verify.Schema(ctx, db, schemaVersion); err != nil {
		_ = formatter.Error("SCHEMA", err.Error(), nil)
		return WrapExitError(ExitFailure, "artifact invalid", err)
	}

	summary, err := verify.Integrity(ctx, db)
	if err != nil {
		_ = formatter.Error("INTEGRITY", err.Error(), nil)
		return WrapExitError(ExitFailure, "artifact invalid", err)
	}

	result := ValidateResult{
		Valid:           true,
		ArtifactPath:    artifactPath,
		ActiveACMusic:   summary.ActiveACMusic,
		ActiveINFMusic:  summary.ActiveINFMusic,
		OfficialAliases: summary.OfficialACAliases + summary.OfficialINFAliases,
		ManualAliases:   summary.ManualAliases,
	}

	if manifestPath != "" {
		manifest, err := release.LoadManifest(manifestPath)
		if err != nil {
			_ = formatter.Error("MANIFEST", err.Error(), nil)
			return WrapExitError(ExitCommandError, "read manifest", err)
		}
		if manifest == nil {
			_ = formatter.Error("MANIFEST", "manifest not found: "+manifestPath, nil)
			return NewExitError(ExitCommandError, "manifest not found")
		}
		if err := release.ValidateManifest(manifest, artifactPath); err != nil {
			_ = formatter.Error("MANIFEST", err.Error(), nil)
			return WrapExitError(ExitFailure, "manifest mismatch", err)
		}
		result.ManifestChecked = true
	}

	return formatter.Success(result)
}
