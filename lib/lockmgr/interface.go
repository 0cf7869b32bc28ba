package lockmgr

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotLockOwner is returned by Release if the lock is held by a different client.
	ErrNotLockOwner = errors.New("client is not the lock owner")
	// ErrStorageUnavailable is returned if the lock table keeps failing with errors other than contention.
	ErrStorageUnavailable = errors.New("lock storage unavailable")
	// ErrInvalidArgument is returned for requests that can never succeed (e.g. an empty lock key).
	ErrInvalidArgument = errors.New("invalid argument")
)

// ILockManager defines the interface for a lock manager.
type ILockManager interface {
	// Acquire blocks until the lock for key is held by the calling owner on behalf of clientID.
	// Contention is retried forever. It returns an error only if ctx is done, the storage keeps
	// failing (ErrStorageUnavailable) or the request is invalid (ErrInvalidArgument).
	// If the calling owner already holds the lock, Acquire returns immediately.
	Acquire(ctx context.Context, clientID int64, key string) (err error)

	// TryAcquire is like Acquire but gives up once timeout has elapsed.
	// Return a boolean indicating whether the lock was acquired, and an error if any.
	// Running out of time is not an error.
	TryAcquire(ctx context.Context, clientID int64, key string, timeout time.Duration) (ok bool, err error)

	// Release releases the lock for key. Releasing a lock this process does not hold is a no-op.
	// If the lock is held under another client id, ErrNotLockOwner is returned.
	// The method also succeeds if the lock row was already removed by someone else.
	Release(ctx context.Context, clientID int64, key string) (err error)
}
