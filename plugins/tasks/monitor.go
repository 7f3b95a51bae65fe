// Package tasks provides periodic-callback collaborators wired to a
// ProcessBus's START/STOP channels: an interval-based Monitor and a
// cron-expression-based CronTask.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/cherrypy/magicbus"
)

// Monitor calls a callback once every interval, on its own goroutine,
// between Start and Stop.
type Monitor struct {
	interval time.Duration
	callback func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor returns a Monitor that is not yet running; call Start to begin.
func NewMonitor(interval time.Duration, callback func()) *Monitor {
	return &Monitor{interval: interval, callback: callback}
}

// Start begins ticking on a background goroutine derived from ctx. Calling
// Start on an already-running Monitor stops the previous run first.
func (m *Monitor) Start(ctx context.Context) {
	m.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, done)
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.callback()
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the running goroutine, if any, and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StartListener returns a ProcessBus listener (subscribe to START) that
// starts the Monitor running under a background context.
func (m *Monitor) StartListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		m.Start(context.Background())
		return nil, nil
	}
}

// StopListener returns a ProcessBus listener (subscribe to STOP) that stops
// the Monitor, blocking until its goroutine has exited.
func (m *Monitor) StopListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		m.Stop()
		return nil, nil
	}
}
