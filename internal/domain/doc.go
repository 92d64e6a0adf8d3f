// Package domain defines the core types for the outreach quality gate.
//
// Drafts, leads, rejection records, signals and guard results live here.
// They are plain values shared by the guard, the rejection memory store,
// the signal extractors and the API handlers.
//
// Keep this package free of storage and transport:
//   - nothing from other internal/ packages
//   - no *sql.DB, redis client or http.Request in struct fields
//   - JSON tags and pure validation methods are fine
package domain
