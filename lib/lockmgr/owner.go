package lockmgr

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

const (
	// DefaultOwner is the owner name of callers that did not name themselves with WithOwner
	DefaultOwner = "main"
)

type ownerKey struct{}

// WithOwner returns a context that acquires locks as the named owner.
//
// Locks are re-entrant per owner: two goroutines that use the same owner name
// (or no name at all) share ownership of their locks. Goroutines that must
// exclude each other have to use different owner names.
func WithOwner(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ownerKey{}, name)
}

// ownerName returns the owner name stored in ctx or DefaultOwner
func ownerName(ctx context.Context) string {
	if name, ok := ctx.Value(ownerKey{}).(string); ok && name != "" {
		return name
	}
	return DefaultOwner
}

// newProcessToken creates the token that identifies one lock manager instance.
// It combines host name, process id and a random suffix so that tokens of
// different processes (or of a restarted process) never collide.
func newProcessToken() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s_%d_%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
