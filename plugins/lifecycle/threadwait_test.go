package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherrypy/magicbus"
)

func TestThreadWaitJoinsTrackedGoroutines(t *testing.T) {
	bus := magicbus.New(magicbus.Edges{magicbus.Initial: {"EXIT"}}, magicbus.Initial)
	tw := NewThreadWait()
	bus.Subscribe("EXIT", tw.Listener(bus))

	var ran int32
	release := tw.Track("background-worker")
	go func() {
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
		release()
	}()

	_, err := bus.Publish("EXIT")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestThreadWaitWithNothingTrackedReturnsImmediately(t *testing.T) {
	bus := magicbus.New(magicbus.Edges{magicbus.Initial: {"EXIT"}}, magicbus.Initial)
	tw := NewThreadWait()
	bus.Subscribe("EXIT", tw.Listener(bus))

	done := make(chan struct{})
	go func() {
		bus.Publish("EXIT")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EXIT publish blocked despite nothing tracked")
	}
}
