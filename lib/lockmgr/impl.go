package lockmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

// Config holds the tuning parameters of a lock manager
type Config struct {
	// PollInterval is the delay after the first failed attempt
	PollInterval time.Duration
	// MaxPollInterval caps the exponential back-off, values below PollInterval mean a fixed delay
	MaxPollInterval time.Duration
	// Jitter spreads every delay by +-Jitter (fraction of the delay, 0 disables it)
	Jitter float64
	// MaxStorageRetries is the number of consecutive storage faults after which an acquisition
	// fails with ErrStorageUnavailable. 0 retries forever.
	MaxStorageRetries int
}

// DefaultConfig returns the configuration used by the CLI if nothing else is configured
func DefaultConfig() Config {
	return Config{
		PollInterval:      3 * time.Second,
		MaxPollInterval:   3 * time.Second,
		Jitter:            0.1,
		MaxStorageRetries: 10,
	}
}

// Manager is a lock manager backed by a lock table. It keeps a local cache of
// the locks held by this process, so re-entrant acquisitions and releases
// never query the table.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	locks   table.ILockTable
	cfg     Config
	backoff backoff
	token   string // process token, prefix of all owner tokens
	cache   *lockCache
	stats   *managerStats
}

var _ ILockManager = (*Manager)(nil)

// NewLockManager creates a lock manager that stores its locks in the given table.
// A PollInterval <= 0 is replaced by the default.
func NewLockManager(locks table.ILockTable, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.MaxStorageRetries < 0 {
		cfg.MaxStorageRetries = 0
	}
	return &Manager{
		locks:   locks,
		cfg:     cfg,
		backoff: newBackoff(cfg),
		token:   newProcessToken(),
		cache:   newLockCache(),
		stats:   newManagerStats(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockManager)
// --------------------------------------------------------------------------

func (m *Manager) Acquire(ctx context.Context, clientID int64, key string) error {
	_, err := m.acquire(ctx, clientID, key, 0, false)
	return err
}

func (m *Manager) TryAcquire(ctx context.Context, clientID int64, key string, timeout time.Duration) (bool, error) {
	return m.acquire(ctx, clientID, key, timeout, true)
}

func (m *Manager) Release(ctx context.Context, clientID int64, key string) error {
	entry, ok := m.cache.get(key)
	if !ok {
		return nil
	}

	if entry.record.ClientID != clientID {
		notOwnerTotal.Inc()
		return fmt.Errorf("%w: lock %q is held by client %d, not by client %d",
			ErrNotLockOwner, key, entry.record.ClientID, clientID)
	}

	// the row may already be gone (e.g. reaped), deleting a missing row is not an error
	if err := m.locks.DeleteByID(ctx, entry.record.ID); err != nil {
		m.stats.onStorageFault()
		return fmt.Errorf("%w: release lock %q: %w", ErrStorageUnavailable, key, err)
	}

	if m.cache.removeIf(key, entry.record.ID) {
		m.stats.onReleased()
	}
	log.Debugf("released lock %q (row %d, client %d)", key, entry.record.ID, clientID)
	return nil
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Holds reports whether the owner in ctx currently holds the lock for key according to the local cache.
func (m *Manager) Holds(ctx context.Context, key string) bool {
	entry, ok := m.cache.get(key)
	return ok && entry.owner == m.ownerToken(ctx)
}

// Forget drops all cached locks held under clientID without touching the lock table.
// It is used once the client's rows are known to be gone (e.g. after the client was reaped).
// Returns the number of dropped locks.
func (m *Manager) Forget(clientID int64) int {
	keys := m.cache.removeClient(clientID)
	heldLocks.Add(-int64(len(keys)))
	if len(keys) > 0 {
		log.Warningf("forgot %d lock(s) of client %d: %v", len(keys), clientID, keys)
	}
	return len(keys)
}

// Stats returns a snapshot of the statistics of this manager.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot(m.cache.size())
}

// --------------------------------------------------------------------------
// Internal Methods
// --------------------------------------------------------------------------

// ownerToken returns the owner token for the caller identified by ctx
func (m *Manager) ownerToken(ctx context.Context) string {
	return m.token + "/" + ownerName(ctx)
}

// acquire runs the acquisition loop shared by Acquire and TryAcquire.
// If bounded is false, the timeout is ignored.
func (m *Manager) acquire(ctx context.Context, clientID int64, key string, timeout time.Duration, bounded bool) (bool, error) {
	if key == "" {
		failedTotal.Inc()
		return false, fmt.Errorf("%w: lock key must not be empty", ErrInvalidArgument)
	}

	owner := m.ownerToken(ctx)
	start := time.Now()
	attempt := 0
	faults := 0

	for {
		// re-entrant acquisition
		if entry, ok := m.cache.get(key); ok && entry.owner == owner {
			m.stats.onReentrant()
			return true, nil
		}

		// the first attempt is always made, even with a zero timeout
		if bounded && attempt > 0 && time.Since(start) > timeout {
			timeoutTotal.Inc()
			log.Debugf("timeout after %s waiting for lock %q", timeout, key)
			return false, nil
		}

		record := &table.LockRecord{
			LockKey:    key,
			ClientID:   clientID,
			LockOwner:  owner,
			CreateTime: time.Now(),
		}
		err := m.locks.Insert(ctx, record)

		switch {
		case err == nil:
			if m.cache.put(key, lockEntry{owner: owner, record: *record}) {
				// the previous holder in this process lost the lock without noticing
				heldLocks.Add(-1)
			}
			m.stats.onAcquired(start)
			log.Debugf("acquired lock %q (row %d, client %d, owner %s)", key, record.ID, clientID, owner)
			return true, nil

		case table.IsDuplicateKey(err):
			faults = 0
			m.stats.onContention()

		case table.IsInvalidRecord(err):
			failedTotal.Inc()
			return false, fmt.Errorf("%w: lock %q: %w", ErrInvalidArgument, key, err)

		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				failedTotal.Inc()
				return false, ctxErr
			}
			faults++
			m.stats.onStorageFault()
			log.Warningf("storage fault while acquiring lock %q (%d in a row): %v", key, faults, err)
			if m.cfg.MaxStorageRetries > 0 && faults >= m.cfg.MaxStorageRetries {
				failedTotal.Inc()
				return false, fmt.Errorf("%w: lock %q after %d attempts: %w", ErrStorageUnavailable, key, faults, err)
			}
		}

		attempt++
		delay := m.backoff.delay(attempt)
		if bounded {
			remaining := timeout - time.Since(start)
			if remaining < 0 {
				remaining = 0
			}
			delay = min(delay, remaining)
		}

		if err := sleep(ctx, delay); err != nil {
			failedTotal.Inc()
			return false, err
		}
	}
}

// sleep waits for d or until ctx is done, whichever comes first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
