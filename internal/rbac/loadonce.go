package rbac

import "sync"

// loadOnce is a lock-protected "already loaded" guard. Multiple first
// callers race safely: the load runs under the lock and latches only when
// it reports ok, so a failed load is returned to its caller and retried
// by the next one.
type loadOnce[T any] struct {
	mu     sync.Mutex
	loaded bool
	value  T
}

func (l *loadOnce[T]) get(load func() (T, bool)) T {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.value
	}

	value, ok := load()
	if ok {
		l.value = value
		l.loaded = true
	}
	return value
}
