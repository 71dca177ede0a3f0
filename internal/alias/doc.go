// Package alias seeds the music_title_alias table from its two origins.
//
// Official aliases are derived: one row per (active music, scope) whose alias
// text is the music row's normalized search key. Manual aliases come from a
// repository-managed CSV and are validated before any insertion. The table is
// derived data and is rebuilt from scratch on every run, official rows first
// so manual rows can be checked against them.
package alias
