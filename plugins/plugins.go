// Package plugins provides a declarative registration scaffold for bus
// collaborators, replacing the reference implementation's SimplePlugin,
// which discovers channel-named methods on a subclass via attribute
// reflection. Go has no equivalent runtime introspection worth using here,
// so a Builder is given the channel/listener pairs explicitly instead.
package plugins

import "github.com/cherrypy/magicbus"

// Builder accumulates channel subscriptions for one plugin and can
// subscribe or unsubscribe them as a unit against a Bus.
type Builder struct {
	entries []entry
}

type entry struct {
	channel string
	fn      magicbus.ListenerFunc
	opts    []magicbus.SubscribeOption
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// On registers fn to run on channel once the Builder is applied to a bus via
// Subscribe. It returns the Builder so calls can be chained:
// plugins.New().On("START", start).On("STOP", stop).
func (b *Builder) On(channel string, fn magicbus.ListenerFunc, opts ...magicbus.SubscribeOption) *Builder {
	b.entries = append(b.entries, entry{channel: channel, fn: fn, opts: opts})
	return b
}

// Subscribe registers every accumulated (channel, fn) pair on bus, returning
// one Subscription handle per entry in registration order. Pass the result
// to Unsubscribe to remove the whole plugin in one call.
func (b *Builder) Subscribe(bus *magicbus.Bus) []*magicbus.Subscription {
	subs := make([]*magicbus.Subscription, 0, len(b.entries))
	for _, e := range b.entries {
		subs = append(subs, bus.Subscribe(e.channel, e.fn, e.opts...))
	}
	return subs
}

// Unsubscribe removes every Subscription in subs from bus. It is a
// convenience for `plugins.Unsubscribe(bus, subs)` after a prior Subscribe
// call, since the Bus API only knows how to remove one Subscription at a
// time.
func Unsubscribe(bus *magicbus.Bus, subs []*magicbus.Subscription) {
	for _, sub := range subs {
		bus.Unsubscribe(sub)
	}
}
