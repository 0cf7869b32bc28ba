package lockmgr

import (
	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/puzpuzpuz/xsync/v3"
)

// lockEntry is the locally cached state of a lock held by this process
type lockEntry struct {
	owner  string           // owner token of the holder
	record table.LockRecord // the row that was inserted on acquisition
}

// lockCache maps lock keys to the locks this process believes it holds.
// It is never authoritative, the lock table is.
//
// Thread-safety: all methods are safe for concurrent use.
type lockCache struct {
	entries *xsync.MapOf[string, lockEntry]
}

func newLockCache() *lockCache {
	return &lockCache{
		entries: xsync.NewMapOf[string, lockEntry](),
	}
}

func (c *lockCache) get(key string) (lockEntry, bool) {
	return c.entries.Load(key)
}

// put stores the entry, replacing a stale entry of the same key.
// Returns whether an entry was replaced.
func (c *lockCache) put(key string, entry lockEntry) bool {
	_, replaced := c.entries.LoadAndStore(key, entry)
	return replaced
}

// removeIf removes the entry of key if it still refers to the row with the given id.
// Returns whether an entry was removed.
func (c *lockCache) removeIf(key string, rowID int64) bool {
	removed := false
	c.entries.Compute(key, func(old lockEntry, loaded bool) (lockEntry, bool) {
		if !loaded {
			return old, true
		}
		removed = old.record.ID == rowID
		return old, removed
	})
	return removed
}

// removeClient removes all entries held under clientID and returns their keys
func (c *lockCache) removeClient(clientID int64) []string {
	var keys []string
	c.entries.Range(func(key string, entry lockEntry) bool {
		if entry.record.ClientID == clientID {
			keys = append(keys, key)
		}
		return true
	})

	removed := keys[:0]
	for _, key := range keys {
		deleted := false
		c.entries.Compute(key, func(old lockEntry, loaded bool) (lockEntry, bool) {
			deleted = loaded && old.record.ClientID == clientID
			return old, deleted || !loaded
		})
		if deleted {
			removed = append(removed, key)
		}
	}
	return removed
}

func (c *lockCache) size() int {
	return c.entries.Size()
}
