// Package table defines the two durable tables the coordination layer is built
// on: the lock table and the client heartbeat table. Both are plain relational
// tables; all guarantees of the layer derive from the unique constraint on the
// lock key and from single-row insert, update and delete being atomic.
//
// Key Components:
//
//   - ILockTable: Rows of type LockRecord, one per held lock. Insert must fail
//     with RetCDuplicateKey when a row with the same key already exists, which is
//     the only mutual exclusion primitive the lock manager relies on.
//
//   - IHeartbeatTable: Rows of type HeartbeatRecord, one per registered client,
//     refreshed periodically by the client and scanned by the liveness monitor.
//
//   - Error System: All implementations report failures as *Error values with a
//     RetCode. Callers distinguish contention (RetCDuplicateKey), invalid input
//     (RetCInvalidRecord) and storage faults (RetCInternalError) with the helpers
//     IsDuplicateKey, IsInvalidRecord and CodeOf.
//
// Implementations:
//
//   - In-memory tables (mtable): a single-process engine on top of concurrent
//     maps. Useful for tests and for coordinating goroutines of one process.
//     Available in the "github.com/ValentinKolb/dReg/lib/table/mtable" package.
//
//   - SQL tables (sqltable): the production engine on top of gorm with
//     drivers for MySQL, PostgreSQL and SQLite.
//     Available in the "github.com/ValentinKolb/dReg/lib/table/sqltable" package.
//
// The testing package (github.com/ValentinKolb/dReg/lib/table/testing) provides
// a conformance suite every implementation must pass.
package table
