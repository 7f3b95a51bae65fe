package loggers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherrypy/magicbus"
)

func TestSlogSinkMapsLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	bus := magicbus.New(magicbus.Edges{magicbus.Initial: {"IDLE"}}, magicbus.Initial)
	bus.Subscribe(magicbus.LogChannel, sink.Listener())

	_, err := bus.Publish(magicbus.LogChannel, "disk nearly full", magicbus.LevelWarn)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.Contains(out, "disk nearly full"))
	assert.True(t, strings.Contains(out, "WARN"))
}

func TestSlogSinkDefaultsLevelOnMalformedArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewSlogSink(logger)

	listener := sink.Listener()
	_, err := listener("just a string, no level")
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "just a string"))
}
