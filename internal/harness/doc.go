// Package harness runs YAML test scenarios against a fresh ledger.
//
// # Scenario Format
//
//	name: destroy_clears_projects
//	description: "Destroying an organization clears its projects"
//	types: ../types            # optional CUE entity types
//	steps:
//	  - create: organization/o1
//	  - create: project/p1
//	  - change: project/p1
//	    key: organization_id
//	    value: o1
//	  - destroy: organization/o1
//	    as: destroy
//	    expect: { children: 1 }
//	  - advance: 31m
//	  - redo: destroy
//	    expect: { error: NOT_REDOABLE }
//	assertions:
//	  - type: value
//	    target: project/p1
//	    key: organization_id
//	    expect: null
//	  - type: verify
//
// # Steps
//
// Each step sets exactly one of create, change, destroy, undo, redo, or
// advance. Undo and redo take an alias bound by an earlier step's `as`, or
// a literal edit id. A step without expect must succeed.
//
// # Assertion Types
//
//   - value: live value of target.key
//   - status: live, deleted, or missing
//   - history_count: number of edits recorded for target
//   - chain: new values of applied records for target.key, oldest first
//   - undone: undone flag of an edit
//   - counter: derived counter stored on target
//   - verify: live state agrees with the ledger
//
// # Deterministic Testing
//
// Scenarios run on an in-memory store with a manual clock starting at
// testutil.Epoch and edit ids "edit-1", "edit-2", ... so traces and
// records can be compared against golden files.
package harness
