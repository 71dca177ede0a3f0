package verify

import (
	"context"
	"fmt"

	"songmaster/internal/store"
)

// IntegritySummary reports the counts observed by a passing integrity check.
type IntegritySummary struct {
	ActiveACMusic      int
	ActiveINFMusic     int
	OfficialACAliases  int
	OfficialINFAliases int
	ManualAliases      int
}

// Integrity runs the alias integrity checks in order, returning the first
// failure. Checks: per-scope official alias counts match active music counts,
// every active row has its official alias, no duplicate (scope, alias), no
// orphans, no unknown alias_type.
func Integrity(ctx context.Context, q store.Querier) (IntegritySummary, error) {
	var summary IntegritySummary

	for _, scope := range store.Scopes {
		activeMusic, err := store.CountActiveMusic(ctx, q, scope)
		if err != nil {
			return summary, err
		}
		official, err := store.CountAliases(ctx, q, scope, store.AliasTypeOfficial)
		if err != nil {
			return summary, err
		}
		switch scope {
		case store.ScopeAC:
			summary.ActiveACMusic, summary.OfficialACAliases = activeMusic, official
		case store.ScopeINF:
			summary.ActiveINFMusic, summary.OfficialINFAliases = activeMusic, official
		}
		if activeMusic != official {
			return summary, &CheckError{
				Code: ErrCodeCountMismatch,
				Message: fmt.Sprintf(
					"official alias count mismatch for %s: active_music=%d, official_alias=%d",
					scope, activeMusic, official),
			}
		}
	}

	for _, scope := range store.Scopes {
		missing, err := store.CountMissingOfficial(ctx, q, scope)
		if err != nil {
			return summary, err
		}
		if missing > 0 {
			return summary, &CheckError{
				Code: ErrCodeCountMismatch,
				Message: fmt.Sprintf(
					"%d active %s rows have no official alias", missing, scope),
			}
		}
	}

	scope, aliasText, found, err := store.FirstDuplicateScopeAlias(ctx, q)
	if err != nil {
		return summary, err
	}
	if found {
		return summary, &CheckError{
			Code:    ErrCodeUniqueConstraintViolation,
			Message: fmt.Sprintf("duplicate alias detected: %s:%q", scope, aliasText),
		}
	}

	orphans, err := store.CountOrphanAliases(ctx, q)
	if err != nil {
		return summary, err
	}
	if orphans > 0 {
		return summary, &CheckError{
			Code:    ErrCodeOrphanReference,
			Message: fmt.Sprintf("orphan aliases detected: %d", orphans),
		}
	}

	invalid, err := store.InvalidAliasTypes(ctx, q)
	if err != nil {
		return summary, err
	}
	if len(invalid) > 0 {
		return summary, &CheckError{
			Code:    ErrCodeInvalidEnumValue,
			Message: fmt.Sprintf("invalid alias_type values detected: %v", invalid),
		}
	}

	for _, scope := range store.Scopes {
		manual, err := store.CountAliases(ctx, q, scope, store.AliasTypeManual)
		if err != nil {
			return summary, err
		}
		summary.ManualAliases += manual
	}
	return summary, nil
}
