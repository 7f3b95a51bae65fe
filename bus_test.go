package magicbus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEdges() Edges {
	return Edges{
		Initial: {"IDLE"},
		"IDLE":  {"RUNNING"},
	}
}

func TestPublishUndefinedChannelIsSilent(t *testing.T) {
	b := New(testEdges(), Initial)
	output, err := b.Publish("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, output)
}

func TestPublishRunsInPriorityOrder(t *testing.T) {
	b := New(testEdges(), Initial)
	var order []int

	b.Subscribe("greet", func(args ...any) (any, error) {
		order = append(order, 3)
		return nil, nil
	}, Priority(75))
	b.Subscribe("greet", func(args ...any) (any, error) {
		order = append(order, 1)
		return nil, nil
	}, Priority(10))
	b.Subscribe("greet", func(args ...any) (any, error) {
		order = append(order, 2)
		return nil, nil
	}, Priority(50))

	_, err := b.Publish("greet")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishAggregatesNonFatalFailures(t *testing.T) {
	b := New(testEdges(), Initial)
	errA := errors.New("listener a failed")
	errB := errors.New("listener b failed")

	b.Subscribe("greet", func(args ...any) (any, error) { return nil, errA }, Priority(1))
	b.Subscribe("greet", func(args ...any) (any, error) { return "ok", nil }, Priority(2))
	b.Subscribe("greet", func(args ...any) (any, error) { return nil, errB }, Priority(3))

	output, err := b.Publish("greet")
	require.Error(t, err)

	var failures *ChannelFailures
	require.ErrorAs(t, err, &failures)
	assert.Equal(t, []error{errA, errB}, failures.Errors())
	assert.Equal(t, []any{"ok"}, output)
}

func TestPublishFatalErrorShortCircuits(t *testing.T) {
	b := New(testEdges(), Initial)
	var ranThird bool

	b.Subscribe("greet", func(args ...any) (any, error) { return nil, ErrProcessExit }, Priority(1))
	b.Subscribe("greet", func(args ...any) (any, error) {
		ranThird = true
		return nil, nil
	}, Priority(2))

	_, err := b.Publish("greet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessExit))
	assert.False(t, ranThird, "listeners after a fatal failure must not run")
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	b := New(testEdges(), Initial)
	var ran bool
	sub := b.Subscribe("greet", func(args ...any) (any, error) {
		ran = true
		return nil, nil
	})
	b.Unsubscribe(sub)

	_, err := b.Publish("greet")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestUnsubscribeUnknownSubscriptionIsNoop(t *testing.T) {
	b := New(testEdges(), Initial)
	assert.NotPanics(t, func() {
		b.Unsubscribe(nil)
		b.Unsubscribe(&Subscription{channel: "greet"})
	})
}

func TestClearDropsEveryChannel(t *testing.T) {
	b := New(testEdges(), Initial)
	var ran bool
	b.Subscribe("greet", func(args ...any) (any, error) {
		ran = true
		return nil, nil
	})
	b.Clear()

	_, err := b.Publish("greet")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestSnapshotIsStableUnderConcurrentSubscribe(t *testing.T) {
	b := New(testEdges(), Initial)
	b.Subscribe("greet", func(args ...any) (any, error) { return nil, nil })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Subscribe("greet", func(args ...any) (any, error) { return nil, nil })
	}()

	_, err := b.Publish("greet")
	require.NoError(t, err)
	wg.Wait()
}

func TestTransitionSingleHop(t *testing.T) {
	b := New(testEdges(), Initial)
	var seen []State
	b.Subscribe("IDLE", func(args ...any) (any, error) {
		seen = append(seen, "IDLE")
		return nil, nil
	})

	results, err := b.Transition("IDLE")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, State("IDLE"), b.State())
	assert.Equal(t, []State{"IDLE"}, seen)
}

func TestTransitionMultiHop(t *testing.T) {
	b := New(testEdges(), Initial)
	var seen []State
	record := func(s State) ListenerFunc {
		return func(args ...any) (any, error) {
			seen = append(seen, s)
			return nil, nil
		}
	}
	b.Subscribe("IDLE", record("IDLE"))
	b.Subscribe("RUNNING", record("RUNNING"))

	results, err := b.Transition("RUNNING")
	require.NoError(t, err)
	assert.Equal(t, []State{"IDLE", "RUNNING"}, seen)
	assert.Len(t, results, 2)
	assert.Equal(t, State("RUNNING"), b.State())
}

func TestTransitionAlreadyAtDesiredIsNoop(t *testing.T) {
	b := New(testEdges(), Initial)
	results, err := b.Transition(Initial)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestTransitionUnmappedErrorPropagatesAndStops(t *testing.T) {
	b := New(testEdges(), Initial)
	boom := errors.New("boom")
	var ranRunning bool

	b.Subscribe("IDLE", func(args ...any) (any, error) { return nil, boom })
	b.Subscribe("RUNNING", func(args ...any) (any, error) {
		ranRunning = true
		return nil, nil
	})

	_, err := b.Transition("RUNNING")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, ranRunning)
}

func TestTransitionErrorMapRoutesAndContinues(t *testing.T) {
	b := New(testEdges(), Initial, WithErrors(map[State]State{"IDLE": "IDLE_ERROR"}))
	boom := errors.New("boom")
	var errorArgs []any

	b.Subscribe("IDLE", func(args ...any) (any, error) { return nil, boom })
	b.Subscribe("IDLE_ERROR", func(args ...any) (any, error) {
		errorArgs = args
		return nil, nil
	})

	results, err := b.Transition("IDLE")
	require.NoError(t, err, "a routed, handled error must not propagate out of Transition")
	require.Len(t, errorArgs, 1)
	assert.True(t, errors.Is(errorArgs[0].(error), boom))
	assert.Equal(t, State("IDLE_ERROR"), b.State())
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Output, "the rerouted hop contributes no output of its own")
}

func TestIDsAreUniqueAcrossBuses(t *testing.T) {
	a := New(testEdges(), Initial)
	b := New(testEdges(), Initial)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestWithIDOverridesGeneratedID(t *testing.T) {
	b := New(testEdges(), Initial, WithID("fixed"))
	assert.Equal(t, "fixed", b.ID())
}
