package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
)

// Monitor removes clients that stopped sending heartbeats together with their locks.
// Any number of processes may run a monitor on the same tables.
type Monitor struct {
	locks      table.ILockTable
	heartbeats table.IHeartbeatTable
	cfg        Config
	now        func() time.Time
}

// MonitorOption configures optional parameters of a Monitor
type MonitorOption func(*Monitor)

// WithClock replaces the clock of the monitor
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a new liveness monitor
func NewMonitor(locks table.ILockTable, heartbeats table.IHeartbeatTable, cfg Config, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		locks:      locks,
		heartbeats: heartbeats,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scan reads all heartbeat rows once and reaps every stale client.
// The lock rows of a client are deleted before its heartbeat row, so a failed
// scan is completed by the next one. Returns the ids of the reaped clients.
func (m *Monitor) Scan(ctx context.Context) ([]int64, error) {
	recs, err := m.heartbeats.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read heartbeats: %w", err)
	}

	now := m.now()
	var stale []int64
	for _, rec := range recs {
		if m.cfg.IsStale(rec, now) {
			log.Warningf("client %d (%s) is stale, last heartbeat %s ago",
				rec.ID, rec.ClientName, now.Sub(rec.LastHeartbeatTime).Round(time.Millisecond))
			stale = append(stale, rec.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	if err := m.locks.DeleteByClientIDs(ctx, stale); err != nil {
		return nil, fmt.Errorf("delete locks of stale clients %v: %w", stale, err)
	}
	if err := m.heartbeats.DeleteByIDs(ctx, stale); err != nil {
		return nil, fmt.Errorf("delete stale clients %v: %w", stale, err)
	}

	clientsReapedTotal.Add(len(stale))
	log.Infof("reaped %d stale client(s): %v", len(stale), stale)
	return stale, nil
}

// Run calls Scan every heartbeat interval until ctx is done.
// Failed scans are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
				reaperScanFailures.Inc()
				log.Warningf("reaper scan failed: %v", err)
			}
		}
	}
}
