package magicbus

import (
	"errors"
	"strings"
)

// ChannelFailures is the aggregate error returned from Publish when one or
// more listeners on a channel without an error-map entry raised a non-fatal
// error. It accumulates every failure seen during one publish call, in
// invocation order, and every listener still runs regardless of earlier
// failures — the only way to stop the remaining listeners is a fatal error
// (see IsFatal).
type ChannelFailures struct {
	Channel string
	errs    []error
}

// add appends an observed listener failure.
func (c *ChannelFailures) add(err error) {
	c.errs = append(c.errs, err)
}

// Errors returns the listener failures seen so far, in invocation order.
func (c *ChannelFailures) Errors() []error {
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Empty reports whether no failures have been recorded. A *ChannelFailures
// with Empty() true must never be returned as an error by Publish.
func (c *ChannelFailures) Empty() bool {
	return len(c.errs) == 0
}

func (c *ChannelFailures) Error() string {
	parts := make([]string, len(c.errs))
	for i, e := range c.errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

// Unwrap allows errors.Is/errors.As to reach into the aggregated failures.
func (c *ChannelFailures) Unwrap() []error {
	return c.errs
}

// ErrProcessExit is the fatal sentinel a listener returns to request that
// the bus tear down the process rather than route the error through the
// error map, the Go analogue of SystemExit in the original. Wrap it with
// fmt.Errorf("%w: ...", ErrProcessExit) to attach a reason while keeping
// errors.Is(err, ErrProcessExit) true.
var ErrProcessExit = errors.New("magicbus: process exit requested")

// ErrInterrupted is the fatal sentinel for an external interrupt (SIGINT,
// ctrl-C), the Go analogue of KeyboardInterrupt.
var ErrInterrupted = errors.New("magicbus: interrupted")

// FatalPredicate reports whether err must propagate out of Publish/Transition
// unconditionally, never caught by the error-map or ChannelFailures
// machinery.
type FatalPredicate func(err error) bool

// defaultFatal recognizes ErrProcessExit and ErrInterrupted, and anything
// wrapping them.
func defaultFatal(err error) bool {
	return errors.Is(err, ErrProcessExit) || errors.Is(err, ErrInterrupted)
}
