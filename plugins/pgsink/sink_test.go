package pgsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherrypy/magicbus"
)

type fakePool struct {
	mu    sync.Mutex
	execs []string
	args  [][]any
	err   error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.err
}

func (f *fakePool) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

func TestSinkEnsureSchemaIssuesCreateTable(t *testing.T) {
	pool := &fakePool{}
	s := NewSink(pool, "bus_log", 8)
	defer s.Close()

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, 1, pool.count())
}

func TestSinkListenerArchivesEntry(t *testing.T) {
	pool := &fakePool{}
	s := NewSink(pool, "bus_log", 8)
	defer s.Close()

	_, err := s.Listener()("disk nearly full", magicbus.LevelWarn)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return pool.count() == 1 }, time.Second, time.Millisecond)
}

func TestSinkDropsOnFullQueueWithoutBlocking(t *testing.T) {
	pool := &fakePool{}
	s := NewSink(pool, "bus_log", 0)
	defer s.Close()
	listener := s.Listener()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			listener("spam", magicbus.LevelDebug)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listener blocked the publisher instead of dropping")
	}
}

func TestSinkReportsWriteErrors(t *testing.T) {
	boom := errors.New("connection refused")
	pool := &fakePool{err: boom}

	var observed error
	var mu sync.Mutex
	s := NewSink(pool, "bus_log", 8, WithWriteErrorObserver(func(err error) {
		mu.Lock()
		observed = err
		mu.Unlock()
	}))
	defer s.Close()

	_, err := s.Listener()("oops", magicbus.LevelError)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return observed != nil
	}, time.Second, time.Millisecond)
}
