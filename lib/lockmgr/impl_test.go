package lockmgr

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/ValentinKolb/dReg/lib/table/mtable"
	"github.com/ValentinKolb/dReg/lib/table/sqltable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig() Config {
	return Config{
		PollInterval:      2 * time.Millisecond,
		MaxPollInterval:   10 * time.Millisecond,
		MaxStorageRetries: 3,
	}
}

// backends returns the lock table factories the manager is tested against
func backends() map[string]func(t *testing.T) table.ILockTable {
	return map[string]func(t *testing.T) table.ILockTable{
		"memory": func(t *testing.T) table.ILockTable {
			return mtable.NewLockTable()
		},
		"sqlite": func(t *testing.T) table.ILockTable {
			dsn := filepath.Join(t.TempDir(), "locks.db") + "?_busy_timeout=5000"
			tables, err := sqltable.Open(context.Background(), sqltable.Options{
				Driver:      "sqlite",
				DSN:         dsn,
				AutoMigrate: true,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = tables.Close() })
			return tables.Locks
		},
	}
}

// countingTable counts the insert attempts of the wrapped table
type countingTable struct {
	table.ILockTable
	inserts atomic.Int64
}

func (c *countingTable) Insert(ctx context.Context, rec *table.LockRecord) error {
	c.inserts.Add(1)
	return c.ILockTable.Insert(ctx, rec)
}

// faultyTable fails the first `failures` inserts with a storage error (all of them if failures < 0)
type faultyTable struct {
	table.ILockTable
	failures int64
	calls    atomic.Int64
}

func (f *faultyTable) Insert(ctx context.Context, rec *table.LockRecord) error {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return table.NewError(table.RetCInternalError, "connection refused")
	}
	return f.ILockTable.Insert(ctx, rec)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestMutualExclusion(t *testing.T) {
	for name, newTable := range backends() {
		t.Run(name, func(t *testing.T) {
			locks := newTable(t)

			// three "processes" sharing one table
			managers := []*Manager{
				NewLockManager(locks, testConfig()),
				NewLockManager(locks, testConfig()),
				NewLockManager(locks, testConfig()),
			}
			for _, m := range managers {
				m.cfg.MaxStorageRetries = 0
			}

			var (
				inside  atomic.Int32
				counter int
				wg      sync.WaitGroup
			)
			for i := 0; i < 12; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					m := managers[i%len(managers)]
					clientID := int64(i%len(managers) + 1)
					ctx := WithOwner(context.Background(), fmt.Sprintf("worker-%d", i))
					for j := 0; j < 5; j++ {
						if !assert.NoError(t, m.Acquire(ctx, clientID, "shared")) {
							return
						}
						assert.Equal(t, int32(1), inside.Add(1), "two holders at the same time")
						counter++
						inside.Add(-1)
						assert.NoError(t, m.Release(ctx, clientID, "shared"))
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 60, counter)

			rows, err := locks.SelectAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestReentrantAcquire(t *testing.T) {
	locks := &countingTable{ILockTable: mtable.NewLockTable()}
	m := NewLockManager(locks, testConfig())
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, 1, "job"))
	require.NoError(t, m.Acquire(ctx, 1, "job"))
	ok, err := m.TryAcquire(ctx, 1, "job", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int64(1), locks.inserts.Load(), "re-entrant acquisitions must not insert")
	assert.True(t, m.Holds(ctx, "job"))

	// a single release frees the lock
	require.NoError(t, m.Release(ctx, 1, "job"))
	assert.False(t, m.Holds(ctx, "job"))
	rows, err := locks.SelectAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOwnersOfOneProcessExclude(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	a := WithOwner(context.Background(), "a")
	b := WithOwner(context.Background(), "b")

	require.NoError(t, m.Acquire(a, 1, "job"))
	assert.True(t, m.Holds(a, "job"))
	assert.False(t, m.Holds(b, "job"))

	ok, err := m.TryAcquire(b, 1, "job", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	// owners without a name share the default owner
	require.NoError(t, m.Acquire(context.Background(), 1, "other"))
	assert.True(t, m.Holds(WithOwner(context.Background(), DefaultOwner), "other"))
}

func TestTryAcquireTimeout(t *testing.T) {
	locks := mtable.NewLockTable()
	holder := NewLockManager(locks, testConfig())
	waiter := NewLockManager(locks, Config{PollInterval: 30 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, holder.Acquire(ctx, 1, "job"))

	timeout := 100 * time.Millisecond
	start := time.Now()
	ok, err := waiter.TryAcquire(ctx, 2, "job", timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, timeout)
	// the last sleep is clipped to the deadline
	assert.Less(t, elapsed, timeout+80*time.Millisecond)
}

func TestTryAcquireZeroTimeout(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	ok, err := m.TryAcquire(context.Background(), 1, "job", 0)
	require.NoError(t, err)
	assert.True(t, ok, "a free lock is acquired even without waiting time")
}

func TestTryAcquireZeroTimeoutMakesOneAttempt(t *testing.T) {
	locks := &countingTable{ILockTable: mtable.NewLockTable()}
	holder := NewLockManager(locks, testConfig())
	waiter := NewLockManager(locks, testConfig())
	ctx := context.Background()

	ok, err := holder.TryAcquire(ctx, 1, "job", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = waiter.TryAcquire(ctx, 2, "job", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), locks.inserts.Load(), "one insert per manager")

	// the holder re-enters without a deadline check
	ok, err = holder.TryAcquire(ctx, 1, "job", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), locks.inserts.Load())
}

func TestAcquireFreeLockDoesNotWait(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), Config{PollInterval: time.Hour})
	start := time.Now()
	require.NoError(t, m.Acquire(context.Background(), 1, "job"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReleaseByOtherClient(t *testing.T) {
	locks := mtable.NewLockTable()
	m := NewLockManager(locks, testConfig())
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, 1, "job"))

	err := m.Release(ctx, 2, "job")
	assert.ErrorIs(t, err, ErrNotLockOwner)

	// the lock is still held
	assert.True(t, m.Holds(ctx, "job"))
	_, found, err := locks.SelectByKey(ctx, "job")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestReleaseUnknownLock(t *testing.T) {
	locks := &countingTable{ILockTable: mtable.NewLockTable()}
	m := NewLockManager(locks, testConfig())
	assert.NoError(t, m.Release(context.Background(), 1, "never-acquired"))
}

func TestReleaseAfterExternalDelete(t *testing.T) {
	locks := mtable.NewLockTable()
	m := NewLockManager(locks, testConfig())
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, 1, "job"))
	rec, found, err := locks.SelectByKey(ctx, "job")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, locks.DeleteByID(ctx, rec.ID))

	assert.NoError(t, m.Release(ctx, 1, "job"))
	assert.False(t, m.Holds(ctx, "job"))
	assert.Equal(t, 0, m.Stats().Held)
}

func TestStaleCacheEntryIsReplaced(t *testing.T) {
	locks := mtable.NewLockTable()
	a := NewLockManager(locks, testConfig())
	b := NewLockManager(locks, testConfig())
	ctx := context.Background()

	require.NoError(t, a.Acquire(ctx, 1, "job"))

	// the row disappears, e.g. because client 1 was reaped
	require.NoError(t, locks.DeleteByClientIDs(ctx, []int64{1}))

	ok, err := b.TryAcquire(ctx, 2, "job", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	// a still believes it holds the lock, releasing it only touches its own (gone) row
	require.NoError(t, a.Release(ctx, 1, "job"))
	rec, found, err := locks.SelectByKey(ctx, "job")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), rec.ClientID)
}

func TestHandOverBetweenProcesses(t *testing.T) {
	for name, newTable := range backends() {
		t.Run(name, func(t *testing.T) {
			locks := newTable(t)
			procA := NewLockManager(locks, testConfig())
			procB := NewLockManager(locks, testConfig())
			ctx := context.Background()

			require.NoError(t, procA.Acquire(ctx, 1, "job:42"))

			ok, err := procB.TryAcquire(ctx, 2, "job:42", 50*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, procA.Release(ctx, 1, "job:42"))

			ok, err = procB.TryAcquire(ctx, 2, "job:42", 50*time.Millisecond)
			require.NoError(t, err)
			assert.True(t, ok)

			rec, found, err := locks.SelectByKey(ctx, "job:42")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, int64(2), rec.ClientID)
			assert.Equal(t, procB.ownerToken(ctx), rec.LockOwner)
		})
	}
}

func TestWaiterIsWokenAfterRelease(t *testing.T) {
	locks := mtable.NewLockTable()
	holder := NewLockManager(locks, testConfig())
	waiter := NewLockManager(locks, testConfig())
	ctx := context.Background()

	require.NoError(t, holder.Acquire(ctx, 1, "job"))

	done := make(chan error, 1)
	go func() { done <- waiter.Acquire(ctx, 2, "job") }()

	select {
	case <-done:
		t.Fatal("acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, holder.Release(ctx, 1, "job"))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not granted the lock")
	}
	assert.Positive(t, waiter.Stats().Contended)
}

func TestAcquireContextCanceled(t *testing.T) {
	locks := mtable.NewLockTable()
	holder := NewLockManager(locks, testConfig())
	waiter := NewLockManager(locks, testConfig())
	require.NoError(t, holder.Acquire(context.Background(), 1, "job"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := waiter.Acquire(ctx, 2, "job")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmptyKey(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	err := m.Acquire(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ok, err := m.TryAcquire(context.Background(), 1, "", time.Second)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, ok)
}

func TestStorageFaults(t *testing.T) {
	t.Run("persistent", func(t *testing.T) {
		locks := &faultyTable{ILockTable: mtable.NewLockTable(), failures: -1}
		m := NewLockManager(locks, testConfig())

		err := m.Acquire(context.Background(), 1, "job")
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Equal(t, int64(3), locks.calls.Load())
		assert.Equal(t, int64(3), m.Stats().StorageFaults)
	})

	t.Run("transient", func(t *testing.T) {
		locks := &faultyTable{ILockTable: mtable.NewLockTable(), failures: 2}
		m := NewLockManager(locks, testConfig())

		require.NoError(t, m.Acquire(context.Background(), 1, "job"))
		assert.True(t, m.Holds(context.Background(), "job"))
	})

	t.Run("bounded", func(t *testing.T) {
		locks := &faultyTable{ILockTable: mtable.NewLockTable(), failures: -1}
		cfg := testConfig()
		cfg.MaxStorageRetries = 0
		m := NewLockManager(locks, cfg)

		// without a retry limit the deadline ends the attempts
		ok, err := m.TryAcquire(context.Background(), 1, "job", 30*time.Millisecond)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestForget(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, 1, "a"))
	require.NoError(t, m.Acquire(ctx, 1, "b"))
	require.NoError(t, m.Acquire(ctx, 2, "c"))

	assert.Equal(t, 2, m.Forget(1))
	assert.False(t, m.Holds(ctx, "a"))
	assert.False(t, m.Holds(ctx, "b"))
	assert.True(t, m.Holds(ctx, "c"))
	assert.Equal(t, 0, m.Forget(1))
}

func TestStats(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, 1, "job"))
	require.NoError(t, m.Acquire(ctx, 1, "job"))
	require.NoError(t, m.Release(ctx, 1, "job"))

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Acquired)
	assert.Equal(t, int64(1), stats.Reentrant)
	assert.Equal(t, int64(1), stats.Released)
	assert.Equal(t, 0, stats.Held)
}

func TestHeldLocksGauge(t *testing.T) {
	m := NewLockManager(mtable.NewLockTable(), testConfig())
	ctx := context.Background()
	base := HeldLocks()

	require.NoError(t, m.Acquire(ctx, 1, "a"))
	require.NoError(t, m.Acquire(ctx, 1, "b"))
	require.NoError(t, m.Acquire(ctx, 1, "b"))
	assert.Equal(t, base+2, HeldLocks())

	require.NoError(t, m.Release(ctx, 1, "a"))
	assert.Equal(t, base+1, HeldLocks())

	assert.Equal(t, 1, m.Forget(1))
	assert.Equal(t, base, HeldLocks())
}
