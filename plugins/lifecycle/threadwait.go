// Package lifecycle provides the process-teardown collaborators a
// ProcessBus builds on construction: joining tracked goroutines on EXIT,
// a process-exit safety net the caller arms with a deferred Close, and the
// execv re-exec a restart ultimately performs on the main goroutine.
package lifecycle

import (
	"sync"

	"github.com/cherrypy/magicbus"
)

// ThreadWait joins goroutines the caller has explicitly registered via
// Track, one at a time in no particular order, logging each by name once it
// has joined. It
// never attempts to wait on a goroutine nobody told it about, and it never
// waits on the goroutine that is itself running the EXIT publish — calling
// Track from inside the listener Listener returns would deadlock, and
// nothing in this package does that.
type ThreadWait struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewThreadWait returns an empty tracker.
func NewThreadWait() *ThreadWait {
	return &ThreadWait{pending: map[string]chan struct{}{}}
}

// Track registers name as a goroutine to join on EXIT. The caller must
// invoke the returned func exactly once, when the goroutine has finished.
func (t *ThreadWait) Track(name string) func() {
	done := make(chan struct{})
	t.mu.Lock()
	t.pending[name] = done
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// Listener returns the EXIT channel subscriber that joins every currently
// tracked goroutine in turn, logging each by name once it has joined. The
// registry is cleared before the first join.
func (t *ThreadWait) Listener(bus *magicbus.Bus) magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		t.mu.Lock()
		pending := t.pending
		t.pending = map[string]chan struct{}{}
		t.mu.Unlock()

		for name, done := range pending {
			<-done
			bus.Log("joined "+name, magicbus.LevelInfo, false)
		}
		return nil, nil
	}
}
