//go:build unix

package signalhandler

import (
	"os"
	"syscall"
)

// defaultMapping matches the reference implementation's standard table:
// TERM exits, HUP restarts (or exits if interactive), USR1 reloads. USR2 is
// not used here since USR1 is not reserved on any Go-supported Unix target.
func defaultMapping() map[os.Signal]Action {
	return map[os.Signal]Action{
		syscall.SIGTERM: exitAction,
		syscall.SIGHUP:  restartOrExitAction,
		syscall.SIGUSR1: gracefulAction,
	}
}
