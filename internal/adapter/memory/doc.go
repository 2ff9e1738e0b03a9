// Package memory provides in-process repositories with the same semantics as
// the PostgreSQL adapter. Used for tests and local runs without a database.
package memory
