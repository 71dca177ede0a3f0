package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"songmaster/internal/alias"
	"songmaster/internal/store"
)

// LintAliasResult holds manual alias CSV lint results.
type LintAliasResult struct {
	Valid    bool `json:"valid"`
	RowCount int  `json:"row_count"`
	// OrphanChecked reports whether rows were resolved against a database.
	OrphanChecked bool `json:"orphan_checked"`
}

func (r LintAliasResult) String() string {
	suffix := ""
	if r.OrphanChecked {
		suffix = ", orphan check included"
	}
	return fmt.Sprintf("✓ Manual alias CSV valid (%d rows%s)", r.RowCount, suffix)
}

// NewLintAliasCommand creates the lint-alias command.
func NewLintAliasCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "lint-alias <aliases.csv>",
		Short: "Validate a manual alias CSV before committing it",
		Long: `Run the manual alias CSV validations without building: required
columns, empty values, scope and type enums, and in-file duplicates.
With --db, also check every textage_id against an existing artifact.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLintAlias(cmd.Context(), rootOpts, args[0], dbPath, cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "artifact to resolve textage ids against")

	return cmd
}

func runLintAlias(ctx context.Context, opts *RootOptions, csvPath, dbPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rows, err := alias.ReadManualCSVFile(csvPath)
	if err != nil {
		if alias.IsValidationError(err) {
			_ = formatter.Error("VALIDATION", err.Error(), nil)
			return WrapExitError(ExitFailure, "manual alias CSV invalid", err)
		}
		_ = formatter.Error("READ", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read manual alias CSV", err)
	}

	result := LintAliasResult{Valid: true, RowCount: len(rows)}

	if dbPath != "" {
		db, err := store.OpenReadOnly(dbPath)
		if err != nil {
			_ = formatter.Error("OPEN", err.Error(), nil)
			return WrapExitError(ExitCommandError, "open artifact", err)
		}
		defer db.Close()

		known, err := store.TextageIDSet(ctx, db)
		if err != nil {
			_ = formatter.Error("QUERY", err.Error(), nil)
			return WrapExitError(ExitCommandError, "read artifact", err)
		}
		for _, row := range rows {
			if _, ok := known[row.TextageID]; !ok {
				message := fmt.Sprintf(
					"textage_id %q not found in %s (line=%d)", row.TextageID, dbPath, row.Line)
				_ = formatter.Error("ORPHAN_REFERENCE", message, nil)
				return NewExitError(ExitFailure, message)
			}
		}
		result.OrphanChecked = true
	}

	return formatter.Success(result)
}
