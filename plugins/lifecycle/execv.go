package lifecycle

import (
	"os"

	"github.com/cherrypy/magicbus"
)

// Execv re-spawns the current process image: argv unchanged, working
// directory restored to startDir, environment inherited. It must run on the
// bus's main goroutine — a ProcessBus only publishes to its execv channel
// from Block, after the bus has reached its terminal exited state, which
// guarantees that. The actual syscall is platform-gated: see execv_unix.go
// and execv_other.go.
type Execv struct {
	startDir string
}

// NewExecv returns an Execv that will chdir back to startDir before
// re-executing.
func NewExecv(startDir string) *Execv {
	return &Execv{startDir: startDir}
}

// Listener is the execv-channel subscriber a restart installs. It never
// returns on success — the process image is replaced — so a non-nil error
// here always means the re-exec itself failed.
func (e *Execv) Listener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		if err := os.Chdir(e.startDir); err != nil {
			return nil, err
		}
		markCloseOnExec()
		return nil, execve()
	}
}
