package diagnostics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Entry is one decoded transition-history row.
type Entry struct {
	State string
	At    time.Time
	Seq   int64
}

// ReadEntries decodes an Arrow IPC stream produced by Recorder.Export back
// into row form, for diagnostics tooling or tests that don't want to depend
// on the Arrow API directly.
func ReadEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return []Entry{}, nil
	}

	alloc := memory.NewGoAllocator()
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(alloc))
	if err != nil {
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}
	defer reader.Release()

	var entries []Entry
	for reader.Next() {
		rec := reader.Record()
		state := rec.Column(0).(*array.String)
		at := rec.Column(1).(*array.Timestamp)
		seq := rec.Column(2).(*array.Int64)
		for i := 0; i < int(rec.NumRows()); i++ {
			entries = append(entries, Entry{
				State: state.Value(i),
				At:    time.UnixMicro(int64(at.Value(i))).UTC(),
				Seq:   seq.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read arrow records: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
