package app

import "sync"

// pairLocks provides advisory mutual exclusion per (tenant, module) pair.
// A lock is held for the duration of a job, so a second install or
// uninstall request for a busy pair is rejected immediately instead of
// queued. Pairs are independent: holding one never blocks other modules of
// the same tenant or any other tenant.
type pairLocks struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newPairLocks() *pairLocks {
	return &pairLocks{busy: make(map[string]struct{})}
}

// tryAcquire attempts to take the locks for the given modules of a tenant.
// It acquires all of them or none.
func (l *pairLocks) tryAcquire(tenantID string, slugs []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range slugs {
		if _, taken := l.busy[tenantID+"/"+s]; taken {
			return false
		}
	}
	for _, s := range slugs {
		l.busy[tenantID+"/"+s] = struct{}{}
	}
	return true
}

func (l *pairLocks) release(tenantID string, slugs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range slugs {
		delete(l.busy, tenantID+"/"+s)
	}
}
