package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecvListenerFailsOnBadStartDir(t *testing.T) {
	e := NewExecv("/path/does/not/exist/surely-not")
	_, err := e.Listener()()
	require.Error(t, err, "a chdir failure must be reported, not silently ignored")
}

func TestNewExecvStoresStartDir(t *testing.T) {
	e := NewExecv("/tmp")
	assert.Equal(t, "/tmp", e.startDir)
}
