package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherrypy/magicbus"
)

func TestCleanExitDrivesBusToExitedWhenNotThere(t *testing.T) {
	bus := magicbus.New(magicbus.Edges{magicbus.Initial: {"RUNNING"}, "RUNNING": {"EXITED"}}, magicbus.Initial)
	_, err := bus.Transition("RUNNING")
	require.NoError(t, err)

	ce := NewCleanExit(bus, "EXITED")
	ce.Close()
	assert.Equal(t, magicbus.State("EXITED"), bus.State())
}

func TestCleanExitIsNoopWhenAlreadyExited(t *testing.T) {
	bus := magicbus.New(magicbus.Edges{magicbus.Initial: {"EXITED"}}, magicbus.Initial)
	_, err := bus.Transition("EXITED")
	require.NoError(t, err)

	ce := NewCleanExit(bus, "EXITED")
	ce.Close()
	ce.Close()
	assert.Equal(t, magicbus.State("EXITED"), bus.State())
}
