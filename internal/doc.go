// Package internal documents the LGN API server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: organizations, groups, marathons, and users with their tokens
// - storage: Postgres repositories, migrations, and the Redis token cache
// - jobs: River workers that purge revoked and expired tokens
// - auth, audit, config, metrics, telemetry, email: shared infrastructure
// - loadtest: traffic generator used by cmd/loadtest
//
// Code in internal/ is not meant for external import.
package internal
