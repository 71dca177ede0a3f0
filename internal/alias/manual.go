package alias

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"songmaster/internal/store"
)

var requiredColumns = []string{"textage_id", "alias", "alias_scope", "alias_type"}

// ManualRow is one validated row from the manual alias CSV.
type ManualRow struct {
	Line      int
	TextageID string
	Alias     string
	Scope     string
	Type      string
	Note      string
}

// SkippedRow records a manual row dropped because it exactly duplicates a
// derived official alias. The only recoverable condition in manual seeding.
type SkippedRow struct {
	Line      int
	TextageID string
	Scope     string
	Alias     string
}

// ManualSeedReport summarizes one manual seeding pass.
type ManualSeedReport struct {
	Inserted int
	Skipped  []SkippedRow
}

// ReadManualCSV parses and validates the manual alias CSV from r.
//
// The header must carry textage_id, alias, alias_scope and alias_type; a note
// column is optional and any other column is ignored. A UTF-8 BOM on the
// first header cell is tolerated. Row validation order is fixed: empty
// required values, then scope enum, then alias_type, then in-file
// (scope, alias) duplicates. The first failure aborts the whole read.
func ReadManualCSV(r io.Reader) ([]ManualRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, newMissingColumnError(requiredColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("read manual alias CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, column := range requiredColumns {
		if _, ok := index[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, newMissingColumnError(missing)
	}

	cell := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ManualRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manual alias CSV line %d: %w", line, err)
		}

		row := ManualRow{
			Line:      line,
			TextageID: cell(record, "textage_id"),
			Alias:     cell(record, "alias"),
			Scope:     cell(record, "alias_scope"),
			Type:      cell(record, "alias_type"),
			Note:      cell(record, "note"),
		}

		for _, check := range []struct{ column, value string }{
			{"textage_id", row.TextageID},
			{"alias", row.Alias},
			{"alias_scope", row.Scope},
			{"alias_type", row.Type},
		} {
			if check.value == "" {
				return nil, newEmptyValueError(check.column, line)
			}
		}
		if row.Scope != store.ScopeAC && row.Scope != store.ScopeINF {
			return nil, newInvalidEnumError("alias_scope", row.Scope, line)
		}
		if row.Type != store.AliasTypeManual {
			return nil, newInvalidEnumError("alias_type", row.Type, line)
		}

		rows = append(rows, row)
	}

	if err := checkDuplicateScopeAlias(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadManualCSVFile reads and validates the manual alias CSV at path.
func ReadManualCSVFile(path string) ([]ManualRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manual alias CSV: %w", err)
	}
	defer f.Close()
	return ReadManualCSV(f)
}

func checkDuplicateScopeAlias(rows []ManualRow) error {
	type key struct{ scope, alias string }
	firstSeen := map[key]int{}
	for _, row := range rows {
		k := key{row.Scope, row.Alias}
		if first, ok := firstSeen[k]; ok {
			return &ValidationError{
				Code: ErrCodeDuplicateKeyInSource,
				Message: fmt.Sprintf(
					"manual alias CSV has duplicate (alias_scope, alias) %s:%q",
					row.Scope, row.Alias),
				Line: row.Line,
				Details: map[string]string{
					"first_line": fmt.Sprintf("%d", first),
				},
			}
		}
		firstSeen[k] = row.Line
	}
	return nil
}

// SeedManual validates rows against the database and inserts them.
//
// Every textage_id must resolve to a music row, and official aliases must
// already be seeded. A row whose (textage_id, scope, alias) triple exactly
// duplicates an official alias is skipped and reported; any other collision
// with an existing (scope, alias) row aborts the run.
func SeedManual(ctx context.Context, q store.Querier, rows []ManualRow, now string) (ManualSeedReport, error) {
	var report ManualSeedReport

	known, err := store.TextageIDSet(ctx, q)
	if err != nil {
		return report, err
	}
	for _, row := range rows {
		if _, ok := known[row.TextageID]; !ok {
			return report, &ValidationError{
				Code: ErrCodeOrphanReference,
				Message: fmt.Sprintf(
					"manual alias CSV has textage_id not found in music: %q",
					row.TextageID),
				Line: row.Line,
			}
		}
	}

	official, err := store.OfficialAliasTriples(ctx, q)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		triple := store.AliasTriple{TextageID: row.TextageID, Scope: row.Scope, Alias: row.Alias}
		if _, ok := official[triple]; ok {
			report.Skipped = append(report.Skipped, SkippedRow{
				Line:      row.Line,
				TextageID: row.TextageID,
				Scope:     row.Scope,
				Alias:     row.Alias,
			})
			continue
		}

		err := store.InsertAlias(ctx, q, store.AliasRow{
			TextageID: row.TextageID,
			Scope:     row.Scope,
			Alias:     row.Alias,
			Type:      store.AliasTypeManual,
		}, now)
		if store.IsUniqueViolation(err) {
			return report, &ValidationError{
				Code: ErrCodeUniqueConstraintViolation,
				Message: fmt.Sprintf(
					"manual alias collides with existing alias %s:%q",
					row.Scope, row.Alias),
				Line: row.Line,
			}
		}
		if err != nil {
			return report, fmt.Errorf("insert manual alias line %d: %w", row.Line, err)
		}
		report.Inserted++
	}
	return report, nil
}
