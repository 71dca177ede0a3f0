// Package verify holds the pre-publish consistency checks.
//
// Three layers run between reconciliation and publish: alias integrity
// (counts, orphans, enum values), identity permanence against the previously
// published artifact, and a schema self-check on the finished database file.
// Every failure is fatal; a failed check leaves the prior artifact as the
// latest valid one.
package verify
