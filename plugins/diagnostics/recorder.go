// Package diagnostics records bus transition history as Arrow record
// batches, so an operator can pull a compact, columnar snapshot of what a
// process went through without grepping log files.
package diagnostics

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/cherrypy/magicbus"
)

var schema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "state", Type: arrow.BinaryTypes.String},
		{Name: "at", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "seq", Type: arrow.PrimitiveTypes.Int64},
	},
	nil,
)

// nowFunc is overridden in tests for deterministic timestamps.
var nowFunc = time.Now

// Recorder subscribes to every state channel a bus knows about and
// accumulates one row per transition in memory as Arrow columns, exported
// as an IPC stream on demand (typically from a diagnostics HTTP route or
// an EXIT listener).
type Recorder struct {
	alloc   memory.Allocator
	mu      sync.Mutex
	builder *array.RecordBuilder
	rows    int
	maxRows int
	seq     int64
}

// NewRecorder returns a Recorder retaining at most maxRows rows before it
// starts dropping the oldest batch (0 means unbounded). Call Attach to wire
// it to a bus's state channels.
func NewRecorder(maxRows int) *Recorder {
	alloc := memory.NewGoAllocator()
	return &Recorder{
		alloc:   alloc,
		builder: array.NewRecordBuilder(alloc, schema),
		maxRows: maxRows,
	}
}

// Attach subscribes the recorder to every state channel bus.States() knows
// about, returning one Subscription per state so the caller can Unsubscribe
// them as a unit later.
func (r *Recorder) Attach(bus *magicbus.Bus) []*magicbus.Subscription {
	states := bus.States()
	subs := make([]*magicbus.Subscription, 0, len(states))
	for _, state := range states {
		subs = append(subs, bus.Subscribe(string(state), r.listenerFor(state)))
	}
	return subs
}

func (r *Recorder) listenerFor(state magicbus.State) magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		r.record(state)
		return nil, nil
	}
}

func (r *Recorder) record(state magicbus.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxRows > 0 && r.rows >= r.maxRows {
		r.resetLocked()
	}

	r.builder.Field(0).(*array.StringBuilder).Append(string(state))
	r.builder.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(nowFunc().UnixMicro()))
	r.builder.Field(2).(*array.Int64Builder).Append(atomic.AddInt64(&r.seq, 1))
	r.rows++
}

func (r *Recorder) resetLocked() {
	rec := r.builder.NewRecord()
	rec.Release()
	r.rows = 0
}

// Rows reports how many transition rows are currently buffered.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Export serializes the buffered rows as an Arrow IPC stream and clears the
// buffer, so repeated calls yield disjoint batches rather than cumulative
// snapshots.
func (r *Recorder) Export() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.builder.NewRecord()
	defer rec.Release()
	r.rows = 0

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(r.alloc))
	if err := writer.Write(rec); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
