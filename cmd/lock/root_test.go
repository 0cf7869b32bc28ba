package lock

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dReg/lib/lockmgr"
	"github.com/ValentinKolb/dReg/lib/table/mtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelOnLost(t *testing.T) {
	ctx := context.Background()
	mgr := lockmgr.NewLockManager(mtable.NewLockTable(), lockmgr.Config{PollInterval: time.Millisecond})
	require.NoError(t, mgr.Acquire(ctx, 1, "job"))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	onLost := cancelOnLost(mgr, cancel)

	// a client without locks keeps running
	onLost(2)
	assert.NoError(t, runCtx.Err())

	onLost(1)
	assert.Error(t, runCtx.Err())
	assert.ErrorIs(t, context.Cause(runCtx), errLockLost)
	assert.False(t, mgr.Holds(ctx, "job"))
}
