// Package concurrency guards deployment environments against overlapping
// applies. Plans from different pull requests may run side by side, but
// only one apply may touch an environment's state at a time.
package concurrency

import "sync"

type envLock struct {
	sem    chan struct{}
	mu     sync.Mutex
	holder string
}

// Manager hands out non-blocking per-environment locks.
type Manager struct {
	locks sync.Map // map[string]*envLock
}

// NewManager creates a new environment lock manager
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) lock(env string) *envLock {
	actual, _ := m.locks.LoadOrStore(env, &envLock{sem: make(chan struct{}, 1)})
	return actual.(*envLock)
}

// TryAcquire attempts to take the lock for an environment on behalf of
// holder (e.g. "o/r#42"). Returns false without blocking when another
// run holds it.
func (m *Manager) TryAcquire(env, holder string) bool {
	l := m.lock(env)

	select {
	case l.sem <- struct{}{}:
		l.mu.Lock()
		l.holder = holder
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees the environment lock. Safe to call when the lock was
// never acquired.
func (m *Manager) Release(env string) {
	actual, ok := m.locks.Load(env)
	if !ok {
		return
	}
	l := actual.(*envLock)

	select {
	case <-l.sem:
		l.mu.Lock()
		l.holder = ""
		l.mu.Unlock()
	default:
	}
}

// Holder returns who currently holds the environment lock, empty when
// the environment is free.
func (m *Manager) Holder(env string) string {
	actual, ok := m.locks.Load(env)
	if !ok {
		return ""
	}
	l := actual.(*envLock)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}
