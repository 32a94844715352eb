// Package core defines the shared language of the leaptable system.
//
// This package contains:
//   - Domain entities (ObjectType, ColumnResult, SortState, EditableSet, FormStates)
//   - Service interfaces (Fetcher, Storage, Navigator)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
