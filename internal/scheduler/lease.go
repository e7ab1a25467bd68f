package scheduler

import (
	"context"
	"sync"
)

// leases serializes work per decision id inside one process.
//
// Each id gets a one-slot channel while anybody holds or waits for it; the
// entry is reference counted and removed when the last user leaves, so
// the map only holds ids that are in flight.
type leases struct {
	mu sync.Mutex
	m  map[string]*lease
}

type lease struct {
	slot chan struct{}
	refs int
}

func newLeases() *leases {
	return &leases{m: make(map[string]*lease)}
}

// acquire blocks until the lease for id is held or ctx is done. The
// returned release func must be called exactly once.
func (l *leases) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	le, ok := l.m[id]
	if !ok {
		le = &lease{slot: make(chan struct{}, 1)}
		l.m[id] = le
	}
	le.refs++
	l.mu.Unlock()

	select {
	case le.slot <- struct{}{}:
		return func() {
			<-le.slot
			l.drop(id, le)
		}, nil
	case <-ctx.Done():
		l.drop(id, le)
		return nil, ctx.Err()
	}
}

func (l *leases) drop(id string, le *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	le.refs--
	if le.refs == 0 {
		delete(l.m, id)
	}
}

// inFlight returns the number of ids with holders or waiters.
func (l *leases) inFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
