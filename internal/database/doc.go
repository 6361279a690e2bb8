// Package database provides connection pool management for the trade
// archive.
//
// The relay uses a single TimescaleDB pool; the trades hypertable is
// the only persistent store.
package database
