package flow

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// userLocks serializes transitions per user. Events from the same user are
// handled in arrival order; different users proceed in parallel.
type userLocks struct {
	mu   sync.Mutex
	sems map[int64]*semaphore.Weighted
}

func newUserLocks() *userLocks {
	return &userLocks{sems: make(map[int64]*semaphore.Weighted)}
}

// acquire blocks until the user's slot is free or ctx is done. The returned
// release function must be called exactly once.
func (l *userLocks) acquire(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[userID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[userID] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
