package magicbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyWhenAlreadyInState(t *testing.T) {
	b := New(testEdges(), Initial)
	done := make(chan struct{})
	go func() {
		b.Wait([]State{Initial}, time.Hour, "", false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return immediately for an already-satisfied state")
	}
	assert.Equal(t, 0, b.ActiveWaiters())
}

func TestWaitWakesOnTransition(t *testing.T) {
	b := New(testEdges(), Initial)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		b.Wait([]State{"IDLE"}, time.Hour, "", false)
	}()

	require.Eventually(t, func() bool { return b.ActiveWaiters() == 1 }, time.Second, time.Millisecond)

	_, err := b.Transition("IDLE")
	require.NoError(t, err)

	waitOrTimeout(t, &wg, time.Second)
	assert.Equal(t, 0, b.ActiveWaiters())
}

func TestWaitPublishesHeartbeatOnEachWake(t *testing.T) {
	b := New(testEdges(), Initial)
	var pings int
	b.Subscribe("ping", func(args ...any) (any, error) {
		pings++
		return nil, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Wait([]State{"IDLE"}, 10*time.Millisecond, "ping", true)
	}()

	time.Sleep(55 * time.Millisecond)
	_, err := b.Transition("IDLE")
	require.NoError(t, err)
	waitOrTimeout(t, &wg, time.Second)

	assert.GreaterOrEqual(t, pings, 1)
}

func TestWaitLeavesNoActiveWaitersAfterManyConcurrentCalls(t *testing.T) {
	b := New(testEdges(), Initial)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Wait([]State{"IDLE"}, time.Second, "", false)
		}()
	}
	require.Eventually(t, func() bool { return b.ActiveWaiters() == 20 }, time.Second, time.Millisecond)

	_, err := b.Transition("IDLE")
	require.NoError(t, err)
	waitOrTimeout(t, &wg, 2*time.Second)
	assert.Equal(t, 0, b.ActiveWaiters())
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for goroutines")
	}
}
