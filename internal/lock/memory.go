package lock

import (
	"context"
	"sync"
)

// MemoryLocker is a process-local Locker for single-instance deployments and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	next uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]uint64)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (Guard, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.next++
	l.held[key] = l.next
	return &memoryGuard{locker: l, key: key, token: l.next}, true, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type memoryGuard struct {
	locker *MemoryLocker
	key    string
	token  uint64
	once   sync.Once
}

func (g *memoryGuard) Release(context.Context) error {
	g.once.Do(func() {
		g.locker.mu.Lock()
		defer g.locker.mu.Unlock()
		if g.locker.held[g.key] == g.token {
			delete(g.locker.held, g.key)
		}
	})
	return nil
}
