package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock.
type UnlockFunc func(ctx context.Context) error

// ControllerLocker coordinates exclusive use of a controller between tool instances,
// possibly on different hosts sharing the same lab network.
type ControllerLocker interface {
	// Lock acquires the lock for key (e.g. the controller address).
	// It blocks until the lock is acquired or ctx is done. The lock expires after ttl
	// unless released earlier with the returned UnlockFunc, which MUST be called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
