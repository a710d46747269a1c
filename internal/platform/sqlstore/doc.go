// Package sqlstore implements the job ledger on a SQL database. PostgreSQL
// (through pgx) serves shared deployments and SQLite (through the pure-Go
// modernc driver) serves single-node ones and tests. The schema is managed
// by goose migrations embedded in the binary.
package sqlstore
