package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/pidtune/pkg/ports"
)

// Locker implements ports.ControllerLocker within one process.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocker creates a new in-process locker.
func NewLocker() *Locker {
	return &Locker{
		held: make(map[string]chan struct{}),
	}
}

var _ ports.ControllerLocker = (*Locker)(nil)

// Lock blocks until key is free or ctx is done. The ttl bounds how long the lock is held
// when the owner never releases it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			mine := make(chan struct{})
			l.held[key] = mine
			l.mu.Unlock()
			return l.grant(key, mine, ttl), nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-released:
		}
	}
}

func (l *Locker) grant(key string, mine chan struct{}, ttl time.Duration) ports.UnlockFunc {
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == mine {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(mine)
		})
	}
	var timer *time.Timer
	if ttl > 0 {
		timer = time.AfterFunc(ttl, release)
	}
	return func(context.Context) error {
		if timer != nil {
			timer.Stop()
		}
		release()
		return nil
	}
}
