package magicbus

import (
	"runtime/debug"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ListenerFunc is a channel subscriber. args are whatever Publish or a
// transition passed along; the returned value (if any) is collected into
// Publish's result slice. A non-nil error is either fatal (see IsFatal) or
// accumulated into a *ChannelFailures aggregate.
type ListenerFunc func(args ...any) (any, error)

// Subscription is the opaque handle returned by Subscribe. Pass it to
// Unsubscribe to remove the listener.
type Subscription struct {
	channel  string
	fn       ListenerFunc
	priority int
}

// SubscribeOption customizes a single Subscribe call.
type SubscribeOption func(*Subscription)

// Priority overrides the default priority (50). Lower priorities run first.
func Priority(p int) SubscribeOption {
	return func(s *Subscription) { s.priority = p }
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithID sets a fixed bus id instead of generating a random one.
func WithID(id string) Option {
	return func(b *Bus) { b.id = id }
}

// WithErrors installs the error map: a listener failure on channel S with
// S present in this map single-hops the bus to errors[S].
func WithErrors(errorMap map[State]State) Option {
	return func(b *Bus) {
		b.errors = make(map[State]State, len(errorMap))
		for k, v := range errorMap {
			b.errors[k] = v
		}
	}
}

// WithExtraChannels registers non-state channel names (e.g. "main", "execv")
// in addition to every state named in the graph and the always-present "log".
func WithExtraChannels(channels ...string) Option {
	return func(b *Bus) {
		for _, c := range channels {
			b.ensureChannel(c)
		}
	}
}

// WithFatalPredicate extends (by OR) the set of errors treated as fatal.
func WithFatalPredicate(p FatalPredicate) Option {
	return func(b *Bus) {
		prev := b.fatal
		b.fatal = func(err error) bool { return prev(err) || p(err) }
	}
}

// Bus is a state machine and pub/sub messenger. Listeners execute
// synchronously on whichever goroutine calls Publish/Transition; the bus
// never spawns goroutines of its own for dispatch.
type Bus struct {
	id string

	graph  *Graph
	errors map[State]State
	fatal  FatalPredicate

	mu        sync.Mutex
	state     State
	listeners map[string][]*Subscription

	// waitMu guards waitCh, the current generation of the broadcast
	// channel woken by wake(). Every transition closes the old one and
	// installs a fresh one, so a Wait call reading waitCh, then
	// selecting on it, can never miss a wakeup: either it reads the
	// channel before the close (and the select fires immediately) or
	// after (and the state check it makes after reading the channel
	// already sees the new state).
	waitMu  sync.Mutex
	waitCh  chan struct{}
	waiters int32
}

// New creates a Bus with the given state graph (edges), initial state, and
// options. "log" is always registered as an extra channel.
func New(edges Edges, initial State, opts ...Option) *Bus {
	g := NewGraph(edges)
	b := &Bus{
		id:        uuid.New().String()[:8],
		graph:     g,
		errors:    map[State]State{},
		fatal:     defaultFatal,
		state:     initial,
		listeners: map[string][]*Subscription{},
		waitCh:    make(chan struct{}),
	}
	for _, s := range g.States() {
		b.ensureChannel(string(s))
	}
	b.ensureChannel(LogChannel)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewWithGraph is like New but takes an already-built Graph, letting callers
// share one Graph across multiple buses.
func NewWithGraph(g *Graph, initial State, opts ...Option) *Bus {
	b := &Bus{
		id:        uuid.New().String()[:8],
		graph:     g,
		errors:    map[State]State{},
		fatal:     defaultFatal,
		state:     initial,
		listeners: map[string][]*Subscription{},
		waitCh:    make(chan struct{}),
	}
	for _, s := range g.States() {
		b.ensureChannel(string(s))
	}
	b.ensureChannel(LogChannel)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) ensureChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[channel]; !ok {
		b.listeners[channel] = nil
	}
}

// ID returns the bus's opaque identifier. The bus's own log messages do not
// include it.
func (b *Bus) ID() string { return b.id }

// State returns the bus's current state.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// States returns every state in the bus's routing graph.
func (b *Bus) States() []State { return b.graph.States() }

// IsFatal reports whether err must propagate unconditionally through
// Publish/Transition.
func (b *Bus) IsFatal(err error) bool { return b.fatal(err) }

// Subscribe adds fn to channel's listener set (creating the channel if it
// doesn't already exist — publishing to an undefined channel is always
// silent, but subscribing to one is always allowed). Default priority is 50;
// lower priorities run first.
func (b *Bus) Subscribe(channel string, fn ListenerFunc, opts ...SubscribeOption) *Subscription {
	sub := &Subscription{channel: channel, fn: fn, priority: 50}
	for _, opt := range opts {
		opt(sub)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[channel] = append(b.listeners[channel], sub)
	return sub
}

// Unsubscribe removes sub from its channel. Removing an already-absent (or
// nil) subscription is silently a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	listeners := b.listeners[sub.channel]
	for i, s := range listeners {
		if s == sub {
			b.listeners[sub.channel] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

// Clear discards every subscribed listener on every channel. A publish
// already in progress, using a snapshot taken before Clear ran, completes
// normally.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.listeners {
		b.listeners[channel] = nil
	}
}

// snapshot returns a priority-sorted copy of channel's listeners, taken
// atomically so a concurrent Subscribe/Unsubscribe/Clear cannot affect the
// publish already in flight.
func (b *Bus) snapshot(channel string) ([]*Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	listeners, ok := b.listeners[channel]
	if !ok || len(listeners) == 0 {
		return nil, ok
	}
	out := make([]*Subscription, len(listeners))
	copy(out, listeners)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out, true
}

// Publish calls every listener subscribed to channel, in ascending priority
// order, with the given args. Publishing to a channel with no listeners (or
// one that was never subscribed to) returns (nil, nil) — this is deliberate.
//
// If a listener returns a fatal error (see IsFatal), Publish returns
// immediately without running the remaining listeners and without wrapping
// the error. Any other listener error is accumulated into a *ChannelFailures
// and every remaining listener still runs; once all listeners have run,
// Publish returns the aggregate as its error if it is non-empty. Failures on
// the "log" channel itself are never re-logged, to avoid infinite recursion.
func (b *Bus) Publish(channel string, args ...any) ([]any, error) {
	listeners, ok := b.snapshot(channel)
	if !ok || len(listeners) == 0 {
		return nil, nil
	}

	failures := &ChannelFailures{Channel: channel}
	var output []any

	for _, sub := range listeners {
		result, err := sub.fn(args...)
		if err == nil {
			output = append(output, result)
			continue
		}
		if b.IsFatal(err) {
			return output, err
		}
		failures.add(err)
		if channel != LogChannel {
			b.Log("Error in "+channel+" listener: "+err.Error(), LevelError, true)
		}
	}

	if !failures.Empty() {
		return output, failures
	}
	return output, nil
}

// Log publishes (msg, level) to the "log" channel. Unlike the Python
// original, Go has no ambient "current exception" for traceback=true to
// consult, so the Go analogue is the caller's own goroutine stack: when
// traceback is true, a formatted stack trace is captured with
// debug.Stack() and appended to msg before publishing.
func (b *Bus) Log(msg string, level LogLevel, traceback bool) {
	if traceback {
		msg += "\n" + string(debug.Stack())
	}
	b.Publish(LogChannel, msg, level)
}
