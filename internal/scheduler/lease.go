package scheduler

import (
	"sync"
	"sync/atomic"
)

// lease is the mutual-exclusion token for one filter's in-flight scan. The
// cancelled flag is read by the worker immediately before the persist and
// notify step; a cancelled job finishes its outstanding source call but
// discards the result.
type lease struct {
	cancelled atomic.Bool
}

func (l *lease) Cancel()         { l.cancelled.Store(true) }
func (l *lease) Cancelled() bool { return l.cancelled.Load() }

// leaseMap holds at most one lease per filter id, enforcing the one-running-
// scan-per-filter invariant regardless of how the scan was triggered.
type leaseMap struct {
	mu   sync.Mutex
	held map[uint]*lease
}

func newLeaseMap() *leaseMap {
	return &leaseMap{held: make(map[uint]*lease)}
}

// Acquire takes the lease for a filter. Returns false when a scan for the
// filter is already queued or running.
func (m *leaseMap) Acquire(filterID uint) (*lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.held[filterID]; taken {
		return nil, false
	}
	l := &lease{}
	m.held[filterID] = l
	return l, true
}

func (m *leaseMap) Release(filterID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, filterID)
}

// Cancel flags the filter's in-flight lease, if any. Returns whether a
// lease was held.
func (m *leaseMap) Cancel(filterID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.held[filterID]
	if ok {
		l.Cancel()
	}
	return ok
}
