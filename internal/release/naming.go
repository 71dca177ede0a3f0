package release

import (
	"fmt"
	"time"
)

// NextTag picks the release tag for a publish on the given day: vYYYY.MM.DD,
// with a -N suffix counting same-day re-publishes. Tags are never reused;
// existing carries every tag already present in the repository.
func NextTag(existing []string, day time.Time) string {
	base := day.UTC().Format("v2006.01.02")

	taken := make(map[string]struct{}, len(existing))
	for _, tag := range existing {
		taken[tag] = struct{}{}
	}

	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
