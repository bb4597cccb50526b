// Package store persists node state across deep-sleep cycles.
//
// A battery node powers off between publishes, so anything the next wake
// needs must be written to flash before sleeping. This package keeps that
// surface deliberately tiny:
//
//   - Reconnection counters (attempt count + last attempt time), saved as
//     an inseparable pair for the backoff policy
//   - A bounded journal of recent wake cycles for field diagnostics
//
// The store is SQLite via mattn/go-sqlite3 with WAL mode and a busy
// timeout, opened fresh each wake and closed before sleep.
package store
