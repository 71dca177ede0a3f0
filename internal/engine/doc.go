// Package engine runs one reconciliation pass: it walks a parsed Textage
// snapshot, resolves permanent ids for every song and chart, re-derives the
// per-scope active flags with the reset-then-mark scheme, resolves display
// qualifiers, rebuilds the alias table and stamps the meta row.
//
// The engine computes every upsert against the state captured before the
// reset, so a run over an unchanged snapshot leaves updated_at untouched
// everywhere. Callers own the transaction; nothing in this package commits.
package engine
