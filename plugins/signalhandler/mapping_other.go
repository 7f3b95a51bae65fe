//go:build !unix

package signalhandler

import "os"

// defaultMapping on platforms without POSIX signals: only Interrupt
// (console Ctrl-C) is wired, matching the Windows variant design note —
// a console-control hook driving the bus to exited, with reload/graceful
// left to whatever platform-specific hook a caller installs via WithMapping.
func defaultMapping() map[os.Signal]Action {
	return map[os.Signal]Action{
		os.Interrupt: exitAction,
	}
}
