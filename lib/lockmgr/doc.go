// Package lockmgr implements a distributed, re-entrant lock manager on top of
// a lock table (see table.ILockTable). Any number of processes that share the
// same table can use it to coordinate access to shared resources.
//
// Core Functionality:
//   - Blocking (Acquire) and bounded (TryAcquire) lock acquisition
//   - Re-entrant acquisition per owner, served from a local cache
//   - Release with client id verification
//
// Implementation Approach:
//
//	Mutual exclusion is delegated to the unique index on the lock key of the
//	lock table. Specifically:
//
//	- Lock Acquisition: Inserts a row (key, client id, owner token). Exactly
//	  one concurrent insert for a key succeeds, all others are rejected with
//	  a duplicate key error and retried after a back-off delay.
//
//	- Owner Tokens: Every manager generates a process token (host name, pid
//	  and a random suffix). The owner token of a caller is the process token
//	  followed by the owner name from the context (see WithOwner). Callers
//	  without a name share the owner "main".
//
//	- Local Cache: Successful acquisitions are cached by key. If the cached
//	  owner token matches the caller, Acquire returns without touching the
//	  table. The cache is never authoritative: if a row disappears (e.g. it
//	  was reaped by the liveness monitor) the next acquisition by another
//	  process succeeds and the stale entry is replaced.
//
//	- Safe Release: Release only deletes the row if the cached entry belongs
//	  to the given client id, otherwise ErrNotLockOwner is returned.
//
//	- Back-off: The delay between attempts starts at PollInterval and doubles
//	  up to MaxPollInterval, spread by a random jitter. TryAcquire never
//	  sleeps past its deadline.
//
//	- Storage Faults: Errors other than contention are retried as well. After
//	  MaxStorageRetries consecutive faults the acquisition fails with
//	  ErrStorageUnavailable.
//
// Lock Lifetime:
//
//	Locks carry no expiry. A lock is held until it is released or until the
//	liveness monitor (see package liveness) removes the rows of a client that
//	stopped sending heartbeats.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Re-entrancy is tracked per
//	owner token, not per goroutine, so goroutines that must exclude each other
//	have to use different owner names.
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager(tables.Locks, lockmgr.DefaultConfig())
//
//	ctx = lockmgr.WithOwner(ctx, "worker-1")
//	if err := mgr.Acquire(ctx, clientID, "job:42"); err != nil {
//	    // storage unavailable or ctx done
//	}
//	defer mgr.Release(ctx, clientID, "job:42")
//
//	// give up after five seconds
//	ok, err := mgr.TryAcquire(ctx, clientID, "job:43", 5*time.Second)
package lockmgr
