// Package core defines the shared language of the Dante session bridge.
//
// This package contains:
//   - Snapshot entities handed to collaborators (Table, NamedObject, Tree)
//   - The user-declared import plan (ImportSpec)
//   - The error taxonomy returned across the bridge boundary
//   - History entities and the HistoryStore interface
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
