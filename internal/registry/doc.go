// Package registry persists per-URL pipeline progress in SQLite. Entries are
// keyed by the content identifier, created on first sight, and never deleted,
// forming the permanent dedup and audit ledger the whole pipeline resumes
// from.
package registry
