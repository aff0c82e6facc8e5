// Package database provides the connection manager (engine and session
// factory), the schema registry, idempotent schema materialization, database
// provisioning, per-request session scopes, SQL error classification and the
// query hooks used by the service, built on top of Bun.
package database
