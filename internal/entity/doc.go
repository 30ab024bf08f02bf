// Package entity describes which entity types the ledger tracks and the
// per-type rules the ledger enforces on them.
//
// A TypeSpec is plain data: tracked keys, merge window, required keys,
// redo guards, references to other types, and derived counters. Specs come
// from BuiltinTypes or from CUE files compiled by the compiler package.
// NewRegistry validates a set of specs and freezes them into a Registry,
// which is immutable and safe for concurrent reads.
package entity
