package engine

import "songmaster/internal/store"

// ChartType maps one upstream chart slot to its play style and difficulty.
// The Type value indexes into datatbl (note counts) and, doubled plus one,
// into actbl (levels). Slots 0 and 6 do not exist upstream and slot 11 up is
// unused.
type ChartType struct {
	Type       int
	PlayStyle  string
	Difficulty string
}

// ChartTypes is the fixed slot table. Every song carries all nine slots; a
// level of zero marks the chart as not offered.
var ChartTypes = []ChartType{
	{1, store.PlayStyleSP, store.DifficultyBeginner},
	{2, store.PlayStyleSP, store.DifficultyNormal},
	{3, store.PlayStyleSP, store.DifficultyHyper},
	{4, store.PlayStyleSP, store.DifficultyAnother},
	{5, store.PlayStyleSP, store.DifficultyLeggendaria},
	{7, store.PlayStyleDP, store.DifficultyNormal},
	{8, store.PlayStyleDP, store.DifficultyHyper},
	{9, store.PlayStyleDP, store.DifficultyAnother},
	{10, store.PlayStyleDP, store.DifficultyLeggendaria},
}
