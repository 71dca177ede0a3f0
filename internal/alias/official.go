package alias

import (
	"context"
	"fmt"

	"songmaster/internal/store"
)

// SeedOfficial derives one official alias per (active music, scope). The
// alias text is the row's title_search_key, so lookups that already normalize
// their input hit the official alias without a second normalization pass.
// Returns the number of rows inserted.
func SeedOfficial(ctx context.Context, q store.Querier, now string) (int, error) {
	inserted := 0
	for _, scope := range store.Scopes {
		titles, err := store.ActiveMusicTitles(ctx, q, scope)
		if err != nil {
			return inserted, err
		}
		for _, t := range titles {
			textageID, searchKey := t[0], t[1]
			err := store.InsertAlias(ctx, q, store.AliasRow{
				TextageID: textageID,
				Scope:     scope,
				Alias:     searchKey,
				Type:      store.AliasTypeOfficial,
			}, now)
			if store.IsUniqueViolation(err) {
				// Two active songs normalizing to the same search key within
				// one scope. Official seeding cannot proceed; the search key
				// is the lookup identity.
				return inserted, &ValidationError{
					Code: ErrCodeUniqueConstraintViolation,
					Message: fmt.Sprintf(
						"official alias collision %s:%q (textage_id=%s)",
						scope, searchKey, textageID),
				}
			}
			if err != nil {
				return inserted, fmt.Errorf("insert official alias %s/%s: %w", scope, textageID, err)
			}
			inserted++
		}
	}
	return inserted, nil
}

// Rebuild drops every alias row and reseeds both origins: official first,
// then manual, so redundancy and collision checks see the derived rows.
func Rebuild(ctx context.Context, q store.Querier, manual []ManualRow, now string) (official int, report ManualSeedReport, err error) {
	if err = store.DeleteAllAliases(ctx, q); err != nil {
		return 0, report, err
	}
	official, err = SeedOfficial(ctx, q, now)
	if err != nil {
		return official, report, err
	}
	report, err = SeedManual(ctx, q, manual, now)
	return official, report, err
}
