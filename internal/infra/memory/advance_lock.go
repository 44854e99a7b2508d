package memory

import (
	"context"
	"sync"
)

// AdvanceLocker is a process-local app.AdvanceLocker.
type AdvanceLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewAdvanceLocker() *AdvanceLocker {
	return &AdvanceLocker{held: make(map[string]struct{})}
}

func (l *AdvanceLocker) TryLock(_ context.Context, roomID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[roomID]; busy {
		return nil, false, nil
	}
	l.held[roomID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, roomID)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
