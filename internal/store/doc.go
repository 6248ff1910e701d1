// Package store persists daemon state in SQLite and exposes it as a set of
// independent key-value namespaces.
//
// Each namespace behaves as a durable string-keyed map with JSON-encoded
// values: get, set, remove, keys, has. There are deliberately no
// cross-namespace transactions; multi-entry updates (an answer and its
// resource state, say) are independent writes, and the recovery and cleanup
// passes own the reconciliation of any divergence that leaves behind.
//
// The database is treated as bookkeeping for in-flight clips rather than a
// long-term archive. Schema changes bump the version in schema.go; users
// delete the database to adopt the new schema.
package store
