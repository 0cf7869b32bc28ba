// Package cmd implements the command-line interface of dReg. It provides a
// hierarchical command structure to run a liveness agent and to use and
// inspect the lock and heartbeat tables.
//
// The package is organized into several subpackages:
//
//   - serve: Runs a client heartbeat and the reaper of stale clients
//   - lock: Commands for locking operations (exec, list)
//   - client: Commands to inspect and reap clients (list, reap)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable DREG_<FLAG>
// (e.g. DREG_HEARTBEAT_INTERVAL=5s). The files .env and .env.local are loaded
// first. See dreg -help for a list of all commands.
package cmd
