package lockmgr

import (
	"sync/atomic"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// process wide metrics, exposed in the prometheus format by the metrics endpoint
var (
	acquiredTotal      = vm.NewCounter(`dreg_lock_acquire_total{result="acquired"}`)
	reentrantTotal     = vm.NewCounter(`dreg_lock_acquire_total{result="reentrant"}`)
	timeoutTotal       = vm.NewCounter(`dreg_lock_acquire_total{result="timeout"}`)
	failedTotal        = vm.NewCounter(`dreg_lock_acquire_total{result="error"}`)
	contentionTotal    = vm.NewCounter(`dreg_lock_contention_total`)
	storageFaultsTotal = vm.NewCounter(`dreg_lock_storage_faults_total`)
	releasedTotal      = vm.NewCounter(`dreg_lock_release_total`)
	notOwnerTotal      = vm.NewCounter(`dreg_lock_not_owner_total`)
	acquireDuration    = vm.NewHistogram(`dreg_lock_acquire_duration_seconds`)

	// heldLocks counts the cache entries of all managers of this process
	heldLocks atomic.Int64
	_         = vm.NewGauge(`dreg_locks_held`, func() float64 {
		return float64(heldLocks.Load())
	})
)

// Stats is a snapshot of the statistics of one lock manager.
type Stats struct {
	Acquired      int64 // locks inserted into the lock table
	Reentrant     int64 // acquisitions served from the local cache
	Contended     int64 // attempts rejected because the lock was held
	StorageFaults int64 // attempts that failed with a storage error
	Released      int64 // locks released
	Held          int   // locks currently in the local cache

	ContentionRate1 float64       // contended attempts per second (1 minute moving average)
	WaitP50         time.Duration // median time from Acquire to acquisition
	WaitP99         time.Duration
	WaitMax         time.Duration
}

// managerStats collects the per instance statistics
type managerStats struct {
	acquired      gometrics.Counter
	reentrant     gometrics.Counter
	storageFaults gometrics.Counter
	released      gometrics.Counter
	contention    gometrics.Meter
	wait          gometrics.Timer
}

func newManagerStats() *managerStats {
	return &managerStats{
		acquired:      gometrics.NewCounter(),
		reentrant:     gometrics.NewCounter(),
		storageFaults: gometrics.NewCounter(),
		released:      gometrics.NewCounter(),
		contention:    gometrics.NewMeter(),
		wait:          gometrics.NewTimer(),
	}
}

func (s *managerStats) onAcquired(start time.Time) {
	s.acquired.Inc(1)
	s.wait.UpdateSince(start)
	acquiredTotal.Inc()
	heldLocks.Add(1)
	acquireDuration.UpdateDuration(start)
}

func (s *managerStats) onReentrant() {
	s.reentrant.Inc(1)
	reentrantTotal.Inc()
}

func (s *managerStats) onContention() {
	s.contention.Mark(1)
	contentionTotal.Inc()
}

func (s *managerStats) onStorageFault() {
	s.storageFaults.Inc(1)
	storageFaultsTotal.Inc()
}

func (s *managerStats) onReleased() {
	s.released.Inc(1)
	releasedTotal.Inc()
	heldLocks.Add(-1)
}

func (s *managerStats) snapshot(held int) Stats {
	return Stats{
		Acquired:        s.acquired.Count(),
		Reentrant:       s.reentrant.Count(),
		Contended:       s.contention.Count(),
		StorageFaults:   s.storageFaults.Count(),
		Released:        s.released.Count(),
		Held:            held,
		ContentionRate1: s.contention.Rate1(),
		WaitP50:         time.Duration(s.wait.Percentile(0.5)),
		WaitP99:         time.Duration(s.wait.Percentile(0.99)),
		WaitMax:         time.Duration(s.wait.Max()),
	}
}

// HeldLocks returns the number of locks held by all lock managers of this process.
func HeldLocks() int64 {
	return heldLocks.Load()
}
