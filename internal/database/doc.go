// Package database opens the Postgres connection backing the order ledger.
//
// The pgx driver is registered with database/sql so the ledger can be
// exercised through any database/sql implementation.
package database
