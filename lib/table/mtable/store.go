package mtable

import (
	"context"
	"maps"
	"sort"
	"sync/atomic"

	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewTables creates a new pair of in-memory tables.
// The tables only coordinate goroutines of the current process.
func NewTables() table.Tables {
	return table.Tables{
		Locks:      NewLockTable(),
		Heartbeats: NewHeartbeatTable(),
	}
}

// --------------------------------------------------------------------------
// Lock Table
// --------------------------------------------------------------------------

type lockTableImpl struct {
	rows   *xsync.MapOf[int64, table.LockRecord] // id -> row
	keys   *xsync.MapOf[string, int64]           // unique index: lock key -> id
	nextID atomic.Int64
}

// NewLockTable creates an empty in-memory lock table.
func NewLockTable() table.ILockTable {
	return &lockTableImpl{
		rows: xsync.NewMapOf[int64, table.LockRecord](),
		keys: xsync.NewMapOf[string, int64](),
	}
}

func (t *lockTableImpl) Insert(ctx context.Context, rec *table.LockRecord) error {
	if err := ctx.Err(); err != nil {
		return table.Wrap(err)
	}
	if rec == nil || rec.LockKey == "" {
		return table.NewError(table.RetCInvalidRecord, "lock key is required")
	}

	// the unique index is claimed first, this is the atomic insert-if-absent step
	id := t.nextID.Add(1)
	if _, loaded := t.keys.LoadOrStore(rec.LockKey, id); loaded {
		return table.NewError(table.RetCDuplicateKey, "duplicate lock key "+rec.LockKey)
	}

	rec.ID = id
	t.rows.Store(id, *rec)
	return nil
}

func (t *lockTableImpl) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return table.Wrap(err)
	}
	row, ok := t.rows.LoadAndDelete(id)
	if !ok {
		return nil
	}
	t.unindex(row)
	return nil
}

// unindex removes the unique index entry of row, but only if it still points to row
func (t *lockTableImpl) unindex(row table.LockRecord) {
	t.keys.Compute(row.LockKey, func(old int64, loaded bool) (int64, bool) {
		if !loaded {
			return old, true
		}
		return old, old == row.ID
	})
}

func (t *lockTableImpl) SelectByKey(ctx context.Context, key string) (table.LockRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return table.LockRecord{}, false, table.Wrap(err)
	}
	id, ok := t.keys.Load(key)
	if !ok {
		return table.LockRecord{}, false, nil
	}
	// the index may be claimed before the row is visible
	row, ok := t.rows.Load(id)
	return row, ok, nil
}

func (t *lockTableImpl) SelectAll(ctx context.Context) ([]table.LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, table.Wrap(err)
	}
	recs := make([]table.LockRecord, 0, t.rows.Size())
	t.rows.Range(func(_ int64, row table.LockRecord) bool {
		recs = append(recs, row)
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (t *lockTableImpl) DeleteByClientIDs(ctx context.Context, clientIDs []int64) error {
	if len(clientIDs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return table.Wrap(err)
	}
	clients := make(map[int64]struct{}, len(clientIDs))
	for _, id := range clientIDs {
		clients[id] = struct{}{}
	}

	var victims []int64
	t.rows.Range(func(id int64, row table.LockRecord) bool {
		if _, ok := clients[row.ClientID]; ok {
			victims = append(victims, id)
		}
		return true
	})
	for _, id := range victims {
		if row, ok := t.rows.LoadAndDelete(id); ok {
			t.unindex(row)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Heartbeat Table
// --------------------------------------------------------------------------

type heartbeatTableImpl struct {
	rows *xsync.MapOf[int64, table.HeartbeatRecord]
}

// NewHeartbeatTable creates an empty in-memory heartbeat table.
func NewHeartbeatTable() table.IHeartbeatTable {
	return &heartbeatTableImpl{
		rows: xsync.NewMapOf[int64, table.HeartbeatRecord](),
	}
}

// copyRecord prevents callers from sharing the metadata map with the table
func copyRecord(rec table.HeartbeatRecord) table.HeartbeatRecord {
	if rec.Metadata != nil {
		rec.Metadata = maps.Clone(rec.Metadata)
	}
	return rec
}

func (t *heartbeatTableImpl) SelectAll(ctx context.Context) ([]table.HeartbeatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, table.Wrap(err)
	}
	recs := make([]table.HeartbeatRecord, 0, t.rows.Size())
	t.rows.Range(func(_ int64, row table.HeartbeatRecord) bool {
		recs = append(recs, copyRecord(row))
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (t *heartbeatTableImpl) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return table.Wrap(err)
	}
	for _, id := range ids {
		t.rows.Delete(id)
	}
	return nil
}

func (t *heartbeatTableImpl) UpdateByID(ctx context.Context, rec table.HeartbeatRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, table.Wrap(err)
	}
	updated := false
	t.rows.Compute(rec.ID, func(old table.HeartbeatRecord, loaded bool) (table.HeartbeatRecord, bool) {
		if !loaded {
			// nothing to update, do not create the row
			return old, true
		}
		updated = true
		return copyRecord(rec), false
	})
	return updated, nil
}

func (t *heartbeatTableImpl) Insert(ctx context.Context, rec table.HeartbeatRecord) error {
	if err := ctx.Err(); err != nil {
		return table.Wrap(err)
	}
	if rec.ID == 0 {
		return table.NewError(table.RetCInvalidRecord, "client id is required")
	}
	if _, loaded := t.rows.LoadOrStore(rec.ID, copyRecord(rec)); loaded {
		return table.NewError(table.RetCDuplicateKey, "duplicate client id")
	}
	return nil
}
