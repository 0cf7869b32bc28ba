package liveness

import (
	"encoding/binary"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("liveness")

var (
	heartbeatsTotal      = vm.NewCounter(`dreg_heartbeats_total`)
	heartbeatFailures    = vm.NewCounter(`dreg_heartbeat_failures_total`)
	reregistrationsTotal = vm.NewCounter(`dreg_client_reregistrations_total`)
	clientsReapedTotal   = vm.NewCounter(`dreg_clients_reaped_total`)
	reaperScanFailures   = vm.NewCounter(`dreg_reaper_scan_failures_total`)
)

// Config holds the timing parameters shared by heartbeater and monitor.
// All processes sharing one table should use the same values.
type Config struct {
	// HeartbeatInterval is the refresh interval of the heartbeat rows
	HeartbeatInterval time.Duration
	// StalenessMultiple is the number of intervals a client may miss before it is considered dead
	StalenessMultiple int
}

// DefaultConfig returns the default timing (3s interval, dead after 9s)
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 3 * time.Second,
		StalenessMultiple: 3,
	}
}

// Threshold returns the age after which a heartbeat row is stale
func (c Config) Threshold() time.Duration {
	return time.Duration(c.StalenessMultiple) * c.HeartbeatInterval
}

// IsStale reports whether the client of rec missed too many heartbeats at the time now
func (c Config) IsStale(rec table.HeartbeatRecord, now time.Time) bool {
	return now.Sub(rec.LastHeartbeatTime) > c.Threshold()
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.StalenessMultiple < 1 {
		c.StalenessMultiple = def.StalenessMultiple
	}
	return c
}

// NewClientID generates a random, positive client id
func NewClientID() int64 {
	u := uuid.New()
	for {
		if id := int64(binary.BigEndian.Uint64(u[:8]) >> 1); id != 0 {
			return id
		}
		u = uuid.New()
	}
}
