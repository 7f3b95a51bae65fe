// Package pgsink archives the bus's log channel into Postgres. It never
// lets a slow database make Bus.Publish block: entries are handed to a
// bounded queue drained by a background goroutine, and a full queue drops
// the newest entry rather than applying back-pressure to the publisher —
// the bus's own stated non-goal, honored here at the sink boundary too.
package pgsink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cherrypy/magicbus"
)

// Pool is the subset of *pgxpool.Pool the Sink needs; a real pool already
// satisfies it, and tests can supply a recording fake instead of a live
// database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type logEntry struct {
	message string
	level   magicbus.LogLevel
}

// Sink archives log entries into a Postgres table. It does not create the
// table by itself; call EnsureSchema to create it if it doesn't exist.
type Sink struct {
	pool  Pool
	table string

	queue chan logEntry
	done  chan struct{}

	// onWriteError, when set, observes every failed archival write;
	// tests use it instead of a live logger.
	onWriteError func(error)
}

// Option customizes Sink construction.
type Option func(*Sink)

// WithWriteErrorObserver reports archival write failures. Exported for
// tests; production callers typically leave failures silent, since a
// logging sink must never itself recurse into the log channel.
func WithWriteErrorObserver(fn func(error)) Option {
	return func(s *Sink) { s.onWriteError = fn }
}

// NewSink starts a background archiver writing into table, buffering up to
// bufferSize pending entries.
func NewSink(pool Pool, table string, bufferSize int, opts ...Option) *Sink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	s := &Sink{
		pool:  pool,
		table: table,
		queue: make(chan logEntry, bufferSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// EnsureSchema creates the archive table if it does not already exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		level INTEGER NOT NULL,
		message TEXT NOT NULL,
		logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table))
	return err
}

func (s *Sink) run() {
	defer close(s.done)
	for entry := range s.queue {
		s.write(entry)
	}
}

func (s *Sink) write(entry logEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (level, message) VALUES ($1, $2)", s.table),
		int(entry.level), entry.message)
	if err != nil && s.onWriteError != nil {
		s.onWriteError(err)
	}
}

// Listener returns the log-channel subscriber.
func (s *Sink) Listener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		entry := logEntry{level: magicbus.LevelInfo}
		if len(args) > 0 {
			if msg, ok := args[0].(string); ok {
				entry.message = msg
			}
		}
		if len(args) > 1 {
			if lvl, ok := args[1].(magicbus.LogLevel); ok {
				entry.level = lvl
			}
		}
		select {
		case s.queue <- entry:
		default:
		}
		return nil, nil
	}
}

// Close stops accepting new entries and waits for the drain goroutine to
// finish writing whatever was already queued.
func (s *Sink) Close() {
	close(s.queue)
	<-s.done
}
