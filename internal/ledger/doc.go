// Package ledger persists submitted orders and every observed status in Postgres.
//
// The ledger lets a later process find orders that were submitted but never
// observed reaching a terminal state, and resume polling them.
package ledger
