// Package store provides SQLite-backed storage for the song master database.
//
// Tables:
//   - music: one row per song, keyed externally by textage_id. music_id is
//     permanent: allocated on first observation, never reassigned, never
//     recycled.
//   - chart: one row per playable difficulty, keyed by
//     (music_id, play_style, difficulty) with the same permanence contract
//     for chart_id.
//   - music_title_alias: search aliases, unique on (alias_scope, alias)
//     across both origins and on (textage_id, alias_scope, alias).
//   - meta: one logical row of artifact metadata, rewritten each build.
//
// The sync engine never deletes music or chart rows; content that disappears
// from the source only has its active flags cleared. Timestamps are data,
// not identity: all identity comparison goes through the natural keys above.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Data-access functions take a Querier so they run identically on *sql.DB
// and on the single build transaction.
package store
