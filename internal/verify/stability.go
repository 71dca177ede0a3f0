package verify

import (
	"context"
	"fmt"
	"sort"

	"songmaster/internal/store"
)

// MissingPolicy decides how to treat natural keys present in the previous
// artifact but absent from the new one. Disappearing keys normally mean the
// upstream tables shrank, which deserves a human look, but a deliberate
// catalog prune can downgrade it to a warning.
type MissingPolicy string

const (
	MissingPolicyError MissingPolicy = "error"
	MissingPolicyWarn  MissingPolicy = "warn"
)

// ParseMissingPolicy validates a policy string from config or flags.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(s) {
	case MissingPolicyError, MissingPolicyWarn:
		return MissingPolicy(s), nil
	default:
		return "", fmt.Errorf("missing_policy must be %q or %q, got %q",
			MissingPolicyError, MissingPolicyWarn, s)
	}
}

// StabilityReport summarizes one permanence comparison between the previous
// and the candidate artifact.
type StabilityReport struct {
	OldTotal     int
	NewTotal     int
	SharedTotal  int
	NewOnlyTotal int
	MissingInNew []string
	Policy       MissingPolicy
}

// MusicIDStability verifies that every textage_id in the previous artifact
// still resolves to the same music_id in the candidate.
func MusicIDStability(ctx context.Context, prev, next store.Querier, policy MissingPolicy) (StabilityReport, error) {
	oldMap, err := store.MusicKeyMap(ctx, prev)
	if err != nil {
		return StabilityReport{}, err
	}
	newMap, err := store.MusicKeyMap(ctx, next)
	if err != nil {
		return StabilityReport{}, err
	}

	report := StabilityReport{OldTotal: len(oldMap), NewTotal: len(newMap), Policy: policy}
	for key, oldID := range oldMap {
		newID, ok := newMap[key]
		if !ok {
			report.MissingInNew = append(report.MissingInNew, key)
			continue
		}
		report.SharedTotal++
		if newID != oldID {
			return report, &CheckError{
				Code: ErrCodeIdentityPermanenceViolation,
				Message: fmt.Sprintf(
					"music_id changed for %s: old=%d new=%d", key, oldID, newID),
			}
		}
	}
	return finishReport(report)
}

// ChartIDStability verifies that every (textage_id, play_style, difficulty)
// in the previous artifact still resolves to the same chart_id.
func ChartIDStability(ctx context.Context, prev, next store.Querier, policy MissingPolicy) (StabilityReport, error) {
	oldMap, err := store.ChartKeyMap(ctx, prev)
	if err != nil {
		return StabilityReport{}, err
	}
	newMap, err := store.ChartKeyMap(ctx, next)
	if err != nil {
		return StabilityReport{}, err
	}

	report := StabilityReport{OldTotal: len(oldMap), NewTotal: len(newMap), Policy: policy}
	for key, oldID := range oldMap {
		newID, ok := newMap[key]
		if !ok {
			report.MissingInNew = append(report.MissingInNew,
				fmt.Sprintf("%s/%s/%s", key.TextageID, key.PlayStyle, key.Difficulty))
			continue
		}
		report.SharedTotal++
		if newID != oldID {
			return report, &CheckError{
				Code: ErrCodeIdentityPermanenceViolation,
				Message: fmt.Sprintf(
					"chart_id changed for %s/%s/%s: old=%d new=%d",
					key.TextageID, key.PlayStyle, key.Difficulty, oldID, newID),
			}
		}
	}
	return finishReport(report)
}

func finishReport(report StabilityReport) (StabilityReport, error) {
	sort.Strings(report.MissingInNew)
	report.NewOnlyTotal = report.NewTotal - report.SharedTotal
	if len(report.MissingInNew) > 0 && report.Policy == MissingPolicyError {
		sample := report.MissingInNew
		if len(sample) > 10 {
			sample = sample[:10]
		}
		return report, &CheckError{
			Code: ErrCodeIdentityPermanenceViolation,
			Message: fmt.Sprintf(
				"candidate artifact is missing %d published keys: %v",
				len(report.MissingInNew), sample),
		}
	}
	return report, nil
}
