// Package mtable implements the table.ILockTable and table.IHeartbeatTable
// interfaces in memory. Rows live in xsync.MapOf maps; the unique constraint on
// the lock key is a second map from key to row id that is claimed with an
// atomic LoadOrStore before the row itself becomes visible.
//
// The tables are safe for concurrent use but are not durable and are not shared
// between processes. They are meant for tests and for coordinating the
// goroutines of a single process with the same code that coordinates processes
// through a SQL database.
//
// Usage Example:
//
//	tables := mtable.NewTables()
//	mgr := lockmgr.NewLockManager(tables.Locks, lockmgr.DefaultConfig())
package mtable
