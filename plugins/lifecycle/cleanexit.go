package lifecycle

import (
	"sync"

	"github.com/cherrypy/magicbus"
)

// CleanExit is the process-exit safety net the reference implementation
// installs via atexit: Go has no ambient exit hook, so a caller wires this
// in explicitly with `defer cleanExit.Close()` in main, right after
// constructing the bus. If the process starts to unwind while the bus is
// not yet in exited — a panic recovered in main, an early return, a missed
// Block call — Close drives the bus there synchronously so STOP/EXIT
// listeners still get a chance to run before the process actually exits.
type CleanExit struct {
	bus    *magicbus.Bus
	exited magicbus.State

	mu     sync.Mutex
	closed bool
}

// NewCleanExit returns a safety net for bus, which is considered clean once
// it reaches exited. Call Close via defer.
func NewCleanExit(bus *magicbus.Bus, exited magicbus.State) *CleanExit {
	return &CleanExit{bus: bus, exited: exited}
}

// Close is idempotent; the first call that finds the bus short of exited
// warns and drives it there. Later calls, or calls finding the bus already
// exited, are no-ops.
func (c *CleanExit) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	if c.bus.State() == c.exited {
		return
	}
	c.bus.Log("process exiting with bus not in "+string(c.exited)+", forcing shutdown", magicbus.LevelWarn, false)
	c.bus.Transition(c.exited)
}
