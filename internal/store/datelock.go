package store

import (
	"context"
	"sync"

	"roombook/backend/internal/domain"
)

// DateLocks hands out one mutex per date. Entries are dropped once no
// caller holds or waits on them.
type DateLocks struct {
	mu    sync.Mutex
	locks map[domain.Date]*dateLock
}

type dateLock struct {
	ch   chan struct{}
	refs int
}

func NewDateLocks() *DateLocks {
	return &DateLocks{locks: make(map[domain.Date]*dateLock)}
}

// Lock blocks until date is free or ctx is done. The returned func releases it.
func (l *DateLocks) Lock(ctx context.Context, date domain.Date) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[date]
	if !ok {
		e = &dateLock{ch: make(chan struct{}, 1)}
		l.locks[date] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(date, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(date, e)
		})
	}, nil
}

func (l *DateLocks) release(date domain.Date, e *dateLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, date)
	}
}

func (l *DateLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
