// Package ir provides the canonical record types of the edit ledger.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Edit records are a closed sum type (CreateEdit, PropertyEdit, DestroyEdit)
//   - Attribute values are sealed scalars (Null, String, Int, Bool), NO floats
//   - All JSON tags use snake_case
//   - Ordering uses the store-assigned seq, timestamps are informational
package ir
