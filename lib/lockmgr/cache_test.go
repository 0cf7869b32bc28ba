package lockmgr

import (
	"testing"

	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/stretchr/testify/assert"
)

func entry(owner string, id, clientID int64) lockEntry {
	return lockEntry{owner: owner, record: table.LockRecord{ID: id, ClientID: clientID}}
}

func TestCacheRemoveIfKeepsNewerEntry(t *testing.T) {
	c := newLockCache()

	assert.False(t, c.put("k", entry("a", 1, 1)))
	assert.True(t, c.put("k", entry("b", 2, 1)), "replacing a stale entry")

	// the release of row 1 must not drop the entry of row 2
	assert.False(t, c.removeIf("k", 1))
	got, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, "b", got.owner)

	assert.True(t, c.removeIf("k", 2))
	assert.Equal(t, 0, c.size())
	assert.False(t, c.removeIf("k", 2))
}

func TestCacheRemoveClient(t *testing.T) {
	c := newLockCache()
	c.put("a", entry("x", 1, 1))
	c.put("b", entry("x", 2, 2))
	c.put("c", entry("y", 3, 1))

	assert.ElementsMatch(t, []string{"a", "c"}, c.removeClient(1))
	assert.Equal(t, 1, c.size())
	assert.Empty(t, c.removeClient(1))
}
