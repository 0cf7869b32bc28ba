// Package liveness tracks which clients of a lock table are alive.
//
// Every process that takes locks registers itself as a client by inserting a
// heartbeat row (see Heartbeater) and refreshes the row's last heartbeat time
// every HeartbeatInterval. Any process may run a Monitor, which periodically
// reads all heartbeat rows and reaps clients whose last heartbeat is older than
// StalenessMultiple * HeartbeatInterval: their lock rows are deleted first,
// then their heartbeat row. The locks of a crashed process thereby become
// acquirable again.
//
// A client that was reaped while it was merely unreachable notices it on its
// next heartbeat (the update affects no row). The heartbeater then invokes its
// OnLost callback, which should drop the locally cached locks of the client
// (see lockmgr.Manager.Forget), and registers the client again.
//
// Usage Example:
//
//	hb := liveness.NewHeartbeater(tables.Locks, tables.Heartbeats, 0, cfg,
//	    liveness.WithClientName("worker"),
//	    liveness.WithOnLost(func(id int64) { mgr.Forget(id) }))
//	if err := hb.Start(ctx); err != nil {
//	    // handle error
//	}
//	defer hb.Stop(context.Background())
//
//	go liveness.NewMonitor(tables.Locks, tables.Heartbeats, cfg).Run(ctx)
package liveness
