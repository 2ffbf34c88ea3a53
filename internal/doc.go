// Package internal documents the event scheduling server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, and routing
// - domain: business logic and domain models (events, users, ids)
// - storage: database access and repositories (pgx + Postgres)
// - auth, audit, config, metrics: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
