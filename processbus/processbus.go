// Package processbus provides ProcessBus, a magicbus.Bus pre-wired with the
// process lifecycle state graph: INITIAL through ENTER, IDLE, START/STOP,
// RUN, EXIT, EXITED, and the error states that parallel each of them.
package processbus

import (
	"os"
	"sync"
	"time"

	"github.com/cherrypy/magicbus"
	"github.com/cherrypy/magicbus/plugins/lifecycle"
)

// Lifecycle states, exported so callers can subscribe without stringly
// typing them.
const (
	Enter      magicbus.State = "ENTER"
	Idle       magicbus.State = "IDLE"
	Start      magicbus.State = "START"
	Run        magicbus.State = "RUN"
	Stop       magicbus.State = "STOP"
	Exit       magicbus.State = "EXIT"
	Exited     magicbus.State = "EXITED"
	StartError magicbus.State = "START_ERROR"
	StopError  magicbus.State = "STOP_ERROR"
	ExitError  magicbus.State = "EXIT_ERROR"
)

// Extra, non-state channels.
const (
	MainChannel  = "main"
	ExecvChannel = "execv"
)

func edges() magicbus.Edges {
	return magicbus.Edges{
		magicbus.Initial: {Enter},
		Enter:            {Idle},
		Idle:             {Start, Exit},
		Start:            {Run, Stop},
		Run:              {Stop},
		Stop:             {Idle},
		Exit:             {Exited},
		StartError:       {Stop},
		StopError:        {Exit},
		ExitError:        {Exited},
	}
}

func errorMap() map[magicbus.State]magicbus.State {
	return map[magicbus.State]magicbus.State{
		Enter: StopError,
		Start: StartError,
		Run:   StartError,
		Stop:  StopError,
		Idle:  StopError,
		Exit:  ExitError,
	}
}

// ExitFunc terminates the process; tests override it to observe the call
// instead of actually exiting.
type ExitFunc func(code int)

// ProcessBus is a magicbus.Bus configured for whole-process lifecycle
// management, plus the bookkeeping Restart/Block/Graceful need.
type ProcessBus struct {
	*magicbus.Bus

	exit      ExitFunc
	threads   *lifecycle.ThreadWait
	cleanExit *lifecycle.CleanExit

	mu          sync.Mutex
	startDir    string
	restartFlag bool
}

// Option customizes ProcessBus construction.
type Option func(*ProcessBus)

// WithExitFunc overrides the process-exit function used by the EXIT_ERROR
// handler (os.Exit by default). Intended for tests.
func WithExitFunc(fn ExitFunc) Option {
	return func(p *ProcessBus) { p.exit = fn }
}

// New builds a ProcessBus at state INITIAL, with the built-in error
// listeners and thread-wait-on-EXIT already subscribed. The clean-exit
// safety net is not auto-armed — Go has no ambient atexit to trigger it
// from an ENTER publish — callers arm it explicitly via ArmCleanExit.
func New(opts ...Option) *ProcessBus {
	return newWithBusOptions(nil, opts...)
}

// NewWithBusOptions is like New but also forwards busOpts to magicbus.New,
// e.g. to install a custom FatalPredicate or a fixed bus ID.
func NewWithBusOptions(busOpts []magicbus.Option, opts ...Option) *ProcessBus {
	return newWithBusOptions(busOpts, opts...)
}

func newWithBusOptions(busOpts []magicbus.Option, opts ...Option) *ProcessBus {
	allOpts := append([]magicbus.Option{
		magicbus.WithErrors(errorMap()),
		magicbus.WithExtraChannels(MainChannel, ExecvChannel),
	}, busOpts...)

	bus := magicbus.New(edges(), magicbus.Initial, allOpts...)

	wd, _ := os.Getwd()
	p := &ProcessBus{
		Bus:      bus,
		exit:     os.Exit,
		threads:  lifecycle.NewThreadWait(),
		startDir: wd,
	}
	p.cleanExit = lifecycle.NewCleanExit(p.Bus, Exited)
	for _, opt := range opts {
		opt(p)
	}

	p.registerBuiltins()
	return p
}

func (p *ProcessBus) registerBuiltins() {
	p.Subscribe(string(StartError), func(args ...any) (any, error) {
		p.logCaptured(args)
		p.Transition(Exited)
		return nil, nil
	})
	p.Subscribe(string(StopError), func(args ...any) (any, error) {
		p.logCaptured(args)
		p.Transition(Exited)
		return nil, nil
	})
	p.Subscribe(string(ExitError), func(args ...any) (any, error) {
		p.logCaptured(args)
		// Must never itself raise back into the bus: os.Exit (or the
		// injected ExitFunc) never returns, so there is nothing further
		// to protect here.
		p.exit(70)
		return nil, nil
	})

	p.Subscribe(string(Exit), p.threads.Listener(p.Bus))
}

// logCaptured logs the failure captured by an error-state publish. args[0],
// when present, is the error that triggered the error transition (see
// magicbus's singleHop).
func (p *ProcessBus) logCaptured(args []any) {
	msg := "unrecoverable listener error"
	if len(args) > 0 {
		if err, ok := args[0].(error); ok && err != nil {
			msg = err.Error()
		}
	}
	p.Log(msg, magicbus.LevelError, true)
}

// Track registers the calling goroutine to be joined when the bus reaches
// EXIT. The returned func must be called exactly once when the goroutine
// finishes; failing to call it stalls teardown forever, since EXIT's
// thread-wait listener blocks until every tracked goroutine reports done.
func (p *ProcessBus) Track(name string) func() {
	return p.threads.Track(name)
}

// ArmCleanExit returns the process-exit safety net for this bus. Callers
// are expected to `defer processBus.ArmCleanExit().Close()` in main,
// immediately after construction, so a panic or early return that skips
// Block still drives the bus to EXITED before the process unwinds further.
func (p *ProcessBus) ArmCleanExit() *lifecycle.CleanExit {
	return p.cleanExit
}

// Restart requests that the process be re-executed (argv unchanged) once
// the main goroutine's Block loop observes EXITED. It transitions the bus
// to EXITED but does not itself exec; Block performs the exec after
// publishing to the execv channel, since the reference implementation
// requires execve to run on the main thread, and Block is the only thing
// guaranteed to run there.
func (p *ProcessBus) Restart() {
	p.mu.Lock()
	p.restartFlag = true
	p.mu.Unlock()

	p.Subscribe(ExecvChannel, lifecycle.NewExecv(p.startDir).Listener(), magicbus.Priority(1))
	p.Transition(Exited)
}

// Graceful performs a RUN-IDLE-RUN round trip: a reload hook for anything
// that wants to re-read configuration or rotate resources on IDLE/START/RUN.
func (p *ProcessBus) Graceful() {
	p.Transition(Idle)
	p.Transition(Run)
}

// Block runs on the main goroutine. It waits for EXITED, publishing a
// heartbeat to the main channel on every re-check, and returns once EXITED
// — at which point it publishes to the execv channel so a pending Restart's
// listener can perform the re-exec here, on the main goroutine. Unlike the
// reference implementation, Block itself never intercepts an interrupt:
// that translation (turning SIGINT into a Transition to EXITED) is the
// signal-handling collaborator's job, not Block's — Go delivers signals
// through an explicit channel, not by unwinding whatever happens to be
// blocked.
func (p *ProcessBus) Block(interval time.Duration, sleep bool) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	p.Wait([]magicbus.State{Exited}, interval, MainChannel, sleep)
	p.Publish(ExecvChannel)
}

// StartWithCallback transitions the bus to RUN and, concurrently, spawns a
// goroutine that waits for RUN and then calls fn. It returns a channel that
// is closed once fn has returned, so callers who want to join can do so
// without a sentinel WaitGroup of their own.
func (p *ProcessBus) StartWithCallback(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Wait([]magicbus.State{Run}, 100*time.Millisecond, "", false)
		fn()
	}()
	p.Transition(Run)
	return done
}

// StartDir returns the working directory recorded when the ProcessBus was
// constructed; Restart's execv listener restores it before re-exec.
func (p *ProcessBus) StartDir() string {
	return p.startDir
}

// RestartRequested reports whether Restart has been called.
func (p *ProcessBus) RestartRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restartFlag
}
