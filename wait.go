package magicbus

import (
	"sync/atomic"
	"time"
)

// wake closes the current waitCh generation and installs a fresh one,
// broadcasting to every goroutine blocked in Wait without risking a lost
// wakeup: a waiter either observes the close directly or, having read the
// replacement channel, sees the new state on the re-check Wait makes right
// after reading it.
func (b *Bus) wake() {
	b.waitMu.Lock()
	old := b.waitCh
	b.waitCh = make(chan struct{})
	b.waitMu.Unlock()
	close(old)
}

// ActiveWaiters reports how many goroutines are currently blocked inside
// Wait. It exists so tests can confirm that Wait never leaks: it must
// return to zero once every Wait call has returned.
func (b *Bus) ActiveWaiters() int {
	return int(atomic.LoadInt32(&b.waiters))
}

func containsState(s State, states []State) bool {
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}

// Wait blocks until the bus's state is one of states. If it already is, Wait
// returns immediately without touching channel.
//
// Otherwise, on each iteration Wait either sleeps for interval (sleep=true)
// or blocks on the transition broadcast channel with interval as a timeout
// (sleep=false, the default in ProcessBus), then — whether it woke because
// of a transition or because the timeout elapsed — publishes an empty
// message to channel if channel is non-empty, and re-checks the state. This
// mirrors the reference implementation's behavior of polling via a
// zero-length publish on every wake, whether or not that wake brought the
// bus into a wanted state.
func (b *Bus) Wait(states []State, interval time.Duration, channel string, sleep bool) {
	if containsState(b.State(), states) {
		return
	}

	atomic.AddInt32(&b.waiters, 1)
	defer atomic.AddInt32(&b.waiters, -1)

	for {
		if sleep {
			time.Sleep(interval)
		} else {
			b.waitMu.Lock()
			ch := b.waitCh
			b.waitMu.Unlock()
			// A transition between the last state check and reading ch has
			// already closed the old generation; the new state is visible.
			if containsState(b.State(), states) {
				return
			}
			select {
			case <-ch:
			case <-time.After(interval):
			}
		}

		if channel != "" {
			b.Publish(channel)
		}
		if containsState(b.State(), states) {
			return
		}
	}
}
