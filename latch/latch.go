// Package latch provides a count-down latch: a gate that opens once a fixed
// number of CountDown calls have been made.
//
// A latch is built on sync.Cond with Broadcast: reaching zero is a state
// change relevant to every waiter, not just one.
//
//	ready := latch.New(n)
//	go func() { ready.Await(); work() }() // n times
//	ready.CountDown()                     // n times, from anywhere
package latch

import "sync"

// Latch is a one-shot count-down gate. The zero value is an open latch.
// A Latch must not be copied after first use.
type Latch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
	done  chan struct{}
}

// New returns a latch that opens after n calls to CountDown. A latch created
// with n <= 0 is already open.
func New(n int) *Latch {
	if n < 0 {
		n = 0
	}
	l := &Latch{count: n, done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	if n == 0 {
		close(l.done)
	}
	return l
}

func (l *Latch) lazyInit() {
	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
		l.done = make(chan struct{})
		if l.count == 0 {
			close(l.done)
		}
	}
}

// CountDown decrements the count and returns the remaining count. When the
// count reaches zero every goroutine blocked in Await is released. Calls
// made after the latch has opened are no-ops and return 0.
func (l *Latch) CountDown() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lazyInit()

	if l.count == 0 {
		return 0
	}
	l.count--
	if l.count == 0 {
		close(l.done)
		l.cond.Broadcast()
	}
	return l.count
}

// Count returns the current count.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Await blocks until the count reaches zero.
func (l *Latch) Await() {
	l.mu.Lock()
	l.lazyInit()
	for l.count > 0 { // loop, not if: re-check after every wakeup
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// Done returns a channel that is closed once the count reaches zero, for use
// in a select alongside other events.
func (l *Latch) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lazyInit()
	return l.done
}
