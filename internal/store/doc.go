// Package store is the durable state layer: the append-only seen-item log
// used for dedup, per-watcher health state, and a single cached API token.
//
// The unique index on (source, source_id, item_type) is the only concurrency
// control; MarkSeen is insert-if-absent and safe under concurrent writers.
// Running two process instances against the same database keeps storage
// consistent but can double-send notifications; that race is documented,
// not enforced against.
package store
