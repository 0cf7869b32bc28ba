package lockmgr

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoubles(t *testing.T) {
	b := newBackoff(Config{PollInterval: 10 * time.Millisecond, MaxPollInterval: 80 * time.Millisecond})
	want := []time.Duration{10, 20, 40, 80, 80, 80}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, b.delay(i+1), "attempt %d", i+1)
	}
}

func TestBackoffFixedWithoutMax(t *testing.T) {
	b := newBackoff(Config{PollInterval: 10 * time.Millisecond})
	for attempt := 1; attempt < 5; attempt++ {
		assert.Equal(t, 10*time.Millisecond, b.delay(attempt))
	}
}

func TestBackoffJitter(t *testing.T) {
	b := newBackoff(Config{PollInterval: 100 * time.Millisecond, Jitter: 0.2})
	for i := 0; i < 100; i++ {
		d := b.delay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestOwnerTokens(t *testing.T) {
	a := NewLockManager(nil, testConfig())
	b := NewLockManager(nil, testConfig())
	ctx := context.Background()

	assert.NotEqual(t, a.ownerToken(ctx), b.ownerToken(ctx), "process tokens must differ")
	assert.True(t, strings.HasSuffix(a.ownerToken(ctx), "/"+DefaultOwner))
	assert.True(t, strings.HasSuffix(a.ownerToken(WithOwner(ctx, "w1")), "/w1"))
	assert.Equal(t, DefaultOwner, ownerName(WithOwner(ctx, "")))
}
