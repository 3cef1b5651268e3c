// Package sandbox owns the set of instantiated providers and hands them to
// the orchestrator by name.
package sandbox

import (
	"sort"
	"sync"

	"sandplane/internal/provider"
)

// Manager maps provider names to live provider instances. Registration
// happens once at process start; routing reads dominate afterwards, so the
// map sits behind an RWMutex.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider

	locksMu sync.Mutex
	// locks serializes stop/retry on one execution id without serializing
	// unrelated executions against each other.
	locks map[string]*executionLock
}

type executionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]provider.Provider),
		locks:     make(map[string]*executionLock),
	}
}

// RegisterProvider upserts a provider instance under its name. Idempotent and
// safe to call concurrently with reads.
func (m *Manager) RegisterProvider(name string, p provider.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = p
}

// Provider resolves a provider by name.
func (m *Manager) Provider(name string) (provider.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[name]
	if !ok {
		return nil, &provider.NotFoundError{ID: name}
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LockExecution acquires the per-execution mutex and returns its release
// function. Stop and retry on the same execution id hold this lock for their
// full critical section; the lock entry is dropped once the last holder or
// waiter releases.
func (m *Manager) LockExecution(executionID string) (release func()) {
	m.locksMu.Lock()
	l, ok := m.locks[executionID]
	if !ok {
		l = &executionLock{}
		m.locks[executionID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			m.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, executionID)
			}
			m.locksMu.Unlock()
		})
	}
}
