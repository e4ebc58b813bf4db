// Package storage persists the bot's durable state: subscriptions, the
// registry of created game channels, the audit log and notifier dedup keys.
//
// Two drivers exist:
//   - "memory": process-local, the default and the one tests use
//   - "sqlite": a SQLite database file (modernc.org/sqlite, no cgo)
package storage
