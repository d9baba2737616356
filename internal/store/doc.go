// Package store implements the datastore collaborator required by the
// ledger engine and the inventory counter: read-by-key, insert-append, and
// revision/version-conditioned updates that fail explicitly when the
// precondition no longer holds.
//
// Two implementations are provided. Memory is mutex-guarded and intended for
// tests and ephemeral environments; SQLite is the durable single-node
// deployment target, using conditional UPDATE statements so the precondition
// check and the write are one atomic step.
package store
