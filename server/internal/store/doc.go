// Package store holds the server's state: the alert records behind the
// AlertStore interface, the in-memory fleet view of last snapshots per
// machine, and the retention sweep over resolved alerts.
//
// Two AlertStore implementations exist. Memory keeps everything in a map
// under one mutex and is used for tests and `backend: memory`. SQL persists
// through gorm to SQLite (modernc.org/sqlite, no cgo) or Postgres. Both
// enforce the open-alert invariant: at most one unresolved record per
// (machine, alert type). SQL backs it with a partial unique index and
// ON CONFLICT DO NOTHING; Memory checks and inserts under one lock.
//
// Every SQL failure is returned as *PersistenceError.
package store
