package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherrypy/magicbus"
)

func withFixedClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

func testBus(t *testing.T) *magicbus.Bus {
	t.Helper()
	return magicbus.New(magicbus.Edges{
		magicbus.Initial: {"RUN"},
		"RUN":            {"IDLE"},
		"IDLE":           {"RUN"},
	}, magicbus.Initial)
}

func TestAttachRecordsEveryTransition(t *testing.T) {
	withFixedClock(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := testBus(t)
	r := NewRecorder(0)
	r.Attach(bus)

	_, err := bus.Transition("RUN")
	require.NoError(t, err)
	_, err = bus.Transition("IDLE")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Rows())
}

func TestExportRoundTripsThroughReadEntries(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	withFixedClock(t, at)
	bus := testBus(t)
	r := NewRecorder(0)
	r.Attach(bus)

	_, err := bus.Transition("RUN")
	require.NoError(t, err)

	data, err := r.Export()
	require.NoError(t, err)
	assert.Equal(t, 0, r.Rows())

	entries, err := ReadEntries(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "RUN", entries[0].State)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, at.Unix(), entries[0].At.Unix())
}

func TestReadEntriesEmptyInput(t *testing.T) {
	entries, err := ReadEntries(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorderDropsOldestBatchWhenMaxRowsExceeded(t *testing.T) {
	withFixedClock(t, time.Now())
	bus := testBus(t)
	r := NewRecorder(2)
	r.Attach(bus)

	bus.Transition("RUN")
	bus.Transition("IDLE")
	bus.Transition("RUN")
	bus.Transition("IDLE")
	bus.Transition("RUN")

	assert.LessOrEqual(t, r.Rows(), 2)
}
