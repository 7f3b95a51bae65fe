// Package signalhandler maps OS signals onto ProcessBus transitions: the
// signal-handling collaborator contract described for the core bus, kept
// out of core because it is inherently platform-specific.
package signalhandler

import (
	"os"
	"os/signal"
	"sync"

	"github.com/cherrypy/magicbus"
	"github.com/cherrypy/magicbus/processbus"
)

// Action is what a received signal does to the bus. interactive mirrors
// whether the process is attached to a controlling terminal, which changes
// how a reload signal behaves (see defaultMapping).
type Action func(bus *processbus.ProcessBus, interactive bool)

func exitAction(bus *processbus.ProcessBus, interactive bool) {
	bus.Transition(processbus.Exited)
}

func restartOrExitAction(bus *processbus.ProcessBus, interactive bool) {
	if interactive {
		bus.Transition(processbus.Exited)
		return
	}
	bus.Restart()
}

func gracefulAction(bus *processbus.ProcessBus, interactive bool) {
	bus.Graceful()
}

// Handler listens for OS signals on a dedicated goroutine and translates
// each into the corresponding Action. It never calls processbus.Track on
// itself: that goroutine is the one driving the resulting Transition, and
// tracking it would deadlock EXIT's thread-wait listener against itself.
type Handler struct {
	bus         *processbus.ProcessBus
	interactive bool
	mapping     map[os.Signal]Action

	sigCh  chan os.Signal
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option customizes Handler construction.
type Option func(*Handler)

// WithInteractive marks the process as attached to a controlling terminal,
// changing the reload signal's behavior from restart to a plain exit.
func WithInteractive(interactive bool) Option {
	return func(h *Handler) { h.interactive = interactive }
}

// WithMapping overrides the platform default signal-to-action mapping.
func WithMapping(mapping map[os.Signal]Action) Option {
	return func(h *Handler) { h.mapping = mapping }
}

// New returns a Handler for bus, using the platform's default signal
// mapping (TERM -> exit, HUP -> restart-or-exit, USR1 -> graceful on Unix;
// Interrupt -> exit elsewhere) unless overridden.
func New(bus *processbus.ProcessBus, opts ...Option) *Handler {
	h := &Handler{
		bus:     bus,
		mapping: defaultMapping(),
		sigCh:   make(chan os.Signal, 1),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start registers for every mapped signal and begins translating them on a
// background goroutine.
func (h *Handler) Start() {
	sigs := make([]os.Signal, 0, len(h.mapping))
	for s := range h.mapping {
		sigs = append(sigs, s)
	}
	signal.Notify(h.sigCh, sigs...)

	h.wg.Add(1)
	go h.run()
}

func (h *Handler) run() {
	defer h.wg.Done()
	for {
		select {
		case sig := <-h.sigCh:
			action, ok := h.mapping[sig]
			if !ok {
				continue
			}
			h.bus.Log("received signal "+sig.String(), magicbus.LevelInfo, false)
			action(h.bus, h.interactive)
		case <-h.stopCh:
			return
		}
	}
}

// Stop deregisters the signal handlers and blocks until the background
// goroutine has exited.
func (h *Handler) Stop() {
	signal.Stop(h.sigCh)
	close(h.stopCh)
	h.wg.Wait()
}
