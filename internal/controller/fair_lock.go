package controller

import "sync"

// FairLock is a ticket lock: waiters acquire it in arrival order, so the
// first node to report a failure is handled first
type FairLock struct {
	mu      sync.Mutex
	turn    *sync.Cond
	next    uint64
	serving uint64
}

// NewFairLock creates an unlocked FairLock
func NewFairLock() *FairLock {
	l := &FairLock{}
	l.turn = sync.NewCond(&l.mu)
	return l
}

// Lock blocks until every earlier caller has unlocked
func (l *FairLock) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	ticket := l.next
	l.next++
	for ticket != l.serving {
		l.turn.Wait()
	}
}

// Unlock hands the lock to the next waiter
func (l *FairLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.serving++
	l.turn.Broadcast()
}
