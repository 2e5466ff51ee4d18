// Package domain defines the core business types for the tabular ingestion
// engine.
//
// Types in this package are pure value objects with no database dependencies
// and no HTTP concerns. They are the shared language between parsers,
// handlers, services, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation and lifecycle methods are allowed (they're functions on
//     the type's own state)
//   - Constants and enums belong here
package domain
