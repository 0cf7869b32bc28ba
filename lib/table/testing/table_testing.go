package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
)

// TablesFactory creates fresh, empty tables for a single test
type TablesFactory func(t *testing.T) table.Tables

// RunTableTests runs the conformance suite for a table implementation.
func RunTableTests(t *testing.T, name string, factory TablesFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("LockInsert&Select", func(t *testing.T) {
			testLockInsertSelect(t, open(t, factory))
		})

		t.Run("LockDuplicateKey", func(t *testing.T) {
			testLockDuplicateKey(t, open(t, factory))
		})

		t.Run("LockInvalidRecord", func(t *testing.T) {
			testLockInvalidRecord(t, open(t, factory))
		})

		t.Run("LockDeleteByID", func(t *testing.T) {
			testLockDeleteByID(t, open(t, factory))
		})

		t.Run("LockDeleteByClientIDs", func(t *testing.T) {
			testLockDeleteByClientIDs(t, open(t, factory))
		})

		t.Run("LockConcurrentInsert", func(t *testing.T) {
			testLockConcurrentInsert(t, open(t, factory))
		})

		t.Run("HeartbeatInsert", func(t *testing.T) {
			testHeartbeatInsert(t, open(t, factory))
		})

		t.Run("HeartbeatUpdate", func(t *testing.T) {
			testHeartbeatUpdate(t, open(t, factory))
		})

		t.Run("HeartbeatDelete", func(t *testing.T) {
			testHeartbeatDelete(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// open creates the tables and registers their cleanup
func open(t *testing.T, factory TablesFactory) table.Tables {
	tables := factory(t)
	if tables.Close != nil {
		t.Cleanup(func() {
			if err := tables.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
	return tables
}

// now returns the current time truncated to the precision every implementation keeps
func now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}

// --------------------------------------------------------------------------
// Lock table tests
// --------------------------------------------------------------------------

func testLockInsertSelect(t *testing.T, tables table.Tables) {
	ctx := context.Background()
	created := now()

	rec := &table.LockRecord{LockKey: "job-1", ClientID: 7, LockOwner: "owner-a", CreateTime: created}
	if err := tables.Locks.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if rec.ID == 0 {
		t.Errorf("Expected Insert to assign a row id")
	}

	got, found, err := tables.Locks.SelectByKey(ctx, "job-1")
	if err != nil {
		t.Fatalf("SelectByKey failed: %v", err)
	}
	if !found {
		t.Fatalf("Expected lock job-1 to exist after Insert")
	}
	if got.ID != rec.ID || got.ClientID != 7 || got.LockOwner != "owner-a" {
		t.Errorf("Unexpected row %+v, inserted %+v", got, *rec)
	}
	if !got.CreateTime.Equal(created) {
		t.Errorf("Expected create time %v, got %v", created, got.CreateTime)
	}

	_, found, err = tables.Locks.SelectByKey(ctx, "nonexistent")
	if err != nil || found {
		t.Errorf("Expected nonexistent key to return found=false, got found=%v err=%v", found, err)
	}

	second := &table.LockRecord{LockKey: "job-2", ClientID: 8, LockOwner: "owner-b", CreateTime: created}
	if err := tables.Locks.Insert(ctx, second); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	all, err := tables.Locks.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(all) != 2 || all[0].LockKey != "job-1" || all[1].LockKey != "job-2" {
		t.Errorf("Expected [job-1 job-2] ordered by id, got %+v", all)
	}
}

func testLockDuplicateKey(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	if err := tables.Locks.Insert(ctx, &table.LockRecord{LockKey: "dup", ClientID: 1, LockOwner: "a", CreateTime: now()}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := tables.Locks.Insert(ctx, &table.LockRecord{LockKey: "dup", ClientID: 2, LockOwner: "b", CreateTime: now()})
	if !table.IsDuplicateKey(err) {
		t.Fatalf("Expected duplicate key error, got %v", err)
	}

	got, _, _ := tables.Locks.SelectByKey(ctx, "dup")
	if got.ClientID != 1 {
		t.Errorf("Duplicate insert must not overwrite the row, got client %d", got.ClientID)
	}
}

func testLockInvalidRecord(t *testing.T, tables table.Tables) {
	err := tables.Locks.Insert(context.Background(), &table.LockRecord{ClientID: 1, LockOwner: "a", CreateTime: now()})
	if !table.IsInvalidRecord(err) {
		t.Errorf("Expected invalid record error for an empty lock key, got %v", err)
	}
}

func testLockDeleteByID(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	rec := &table.LockRecord{LockKey: "del", ClientID: 1, LockOwner: "a", CreateTime: now()}
	if err := tables.Locks.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tables.Locks.DeleteByID(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if _, found, _ := tables.Locks.SelectByKey(ctx, "del"); found {
		t.Errorf("Expected lock to be gone after DeleteByID")
	}

	// deleting an absent row is not an error
	if err := tables.Locks.DeleteByID(ctx, rec.ID); err != nil {
		t.Errorf("Expected second DeleteByID to succeed, got %v", err)
	}

	// the key is free again
	again := &table.LockRecord{LockKey: "del", ClientID: 2, LockOwner: "b", CreateTime: now()}
	if err := tables.Locks.Insert(ctx, again); err != nil {
		t.Errorf("Expected re-insert after delete to succeed, got %v", err)
	}
	if again.ID == rec.ID {
		t.Errorf("Expected a new row id for the re-inserted lock")
	}
}

func testLockDeleteByClientIDs(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		rec := &table.LockRecord{
			LockKey:    fmt.Sprintf("lock-%d", i),
			ClientID:   int64(i%3 + 1),
			LockOwner:  "owner",
			CreateTime: now(),
		}
		if err := tables.Locks.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	if err := tables.Locks.DeleteByClientIDs(ctx, nil); err != nil {
		t.Errorf("Expected empty DeleteByClientIDs to be a no-op, got %v", err)
	}

	if err := tables.Locks.DeleteByClientIDs(ctx, []int64{1, 3}); err != nil {
		t.Fatalf("DeleteByClientIDs failed: %v", err)
	}

	all, err := tables.Locks.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 remaining locks, got %d", len(all))
	}
	for _, rec := range all {
		if rec.ClientID != 2 {
			t.Errorf("Lock %s of client %d should have been deleted", rec.LockKey, rec.ClientID)
		}
	}

	// keys of deleted rows are free again
	if err := tables.Locks.Insert(ctx, &table.LockRecord{LockKey: "lock-0", ClientID: 9, LockOwner: "x", CreateTime: now()}); err != nil {
		t.Errorf("Expected lock-0 to be acquirable after its client was removed, got %v", err)
	}
}

func testLockConcurrentInsert(t *testing.T, tables table.Tables) {
	ctx := context.Background()
	const workers = 16

	var (
		wg         sync.WaitGroup
		succeeded  atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := tables.Locks.Insert(ctx, &table.LockRecord{
				LockKey:    "contended",
				ClientID:   int64(i + 1),
				LockOwner:  fmt.Sprintf("owner-%d", i),
				CreateTime: now(),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case table.IsDuplicateKey(err):
				duplicates.Add(1)
			default:
				t.Errorf("Unexpected insert error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Errorf("Expected exactly one successful insert, got %d", succeeded.Load())
	}
	if duplicates.Load() != workers-1 {
		t.Errorf("Expected %d duplicate key errors, got %d", workers-1, duplicates.Load())
	}
}

// --------------------------------------------------------------------------
// Heartbeat table tests
// --------------------------------------------------------------------------

func testHeartbeatInsert(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	err := tables.Heartbeats.Insert(ctx, table.HeartbeatRecord{ClientName: "no-id", LastHeartbeatTime: now()})
	if !table.IsInvalidRecord(err) {
		t.Errorf("Expected invalid record error for a missing id, got %v", err)
	}

	rec := table.HeartbeatRecord{
		ID:                42,
		ClientName:        "worker",
		LastHeartbeatTime: now(),
		CreateTime:        now(),
		Metadata:          map[string]string{"host": "node-1"},
	}
	if err := tables.Heartbeats.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tables.Heartbeats.Insert(ctx, rec); !table.IsDuplicateKey(err) {
		t.Errorf("Expected duplicate key error for a second insert, got %v", err)
	}

	// mutating the inserted record must not change the stored row
	rec.Metadata["host"] = "changed"

	all, err := tables.Heartbeats.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 heartbeat, got %d", len(all))
	}
	got := all[0]
	if got.ID != 42 || got.ClientName != "worker" || got.Metadata["host"] != "node-1" {
		t.Errorf("Unexpected heartbeat row %+v", got)
	}
	if !got.LastHeartbeatTime.Equal(rec.LastHeartbeatTime) {
		t.Errorf("Expected last heartbeat %v, got %v", rec.LastHeartbeatTime, got.LastHeartbeatTime)
	}
}

func testHeartbeatUpdate(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	updated, err := tables.Heartbeats.UpdateByID(ctx, table.HeartbeatRecord{ID: 5, LastHeartbeatTime: now()})
	if err != nil || updated {
		t.Errorf("Expected update of a missing row to return false, got %v (err %v)", updated, err)
	}
	if all, _ := tables.Heartbeats.SelectAll(ctx); len(all) != 0 {
		t.Errorf("Update of a missing row must not create it")
	}

	first := now().Add(-time.Minute)
	if err := tables.Heartbeats.Insert(ctx, table.HeartbeatRecord{ID: 5, ClientName: "c", LastHeartbeatTime: first, CreateTime: first}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	later := now()
	updated, err = tables.Heartbeats.UpdateByID(ctx, table.HeartbeatRecord{ID: 5, ClientName: "c", LastHeartbeatTime: later, CreateTime: first})
	if err != nil || !updated {
		t.Fatalf("Expected update to succeed, got %v (err %v)", updated, err)
	}

	all, _ := tables.Heartbeats.SelectAll(ctx)
	if len(all) != 1 || !all[0].LastHeartbeatTime.Equal(later) {
		t.Errorf("Expected last heartbeat %v after update, got %+v", later, all)
	}
}

func testHeartbeatDelete(t *testing.T, tables table.Tables) {
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		if err := tables.Heartbeats.Insert(ctx, table.HeartbeatRecord{ID: i, ClientName: fmt.Sprintf("c-%d", i), LastHeartbeatTime: now(), CreateTime: now()}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	if err := tables.Heartbeats.DeleteByIDs(ctx, []int64{}); err != nil {
		t.Errorf("Expected empty DeleteByIDs to be a no-op, got %v", err)
	}
	if err := tables.Heartbeats.DeleteByIDs(ctx, []int64{2, 4, 99}); err != nil {
		t.Fatalf("DeleteByIDs failed: %v", err)
	}

	all, _ := tables.Heartbeats.SelectAll(ctx)
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 3 {
		t.Errorf("Expected clients [1 3] to remain, got %+v", all)
	}
}
