//go:build !unix

package lifecycle

import "errors"

// markCloseOnExec is a documented no-op on platforms without fcntl-style fd
// control, matching the reference implementation's try/except ImportError
// fallback.
func markCloseOnExec() {}

// execve has no equivalent outside the exec(2) family; restart is a Unix
// feature here exactly as it is in the source.
func execve() error {
	return errors.New("lifecycle: process re-exec is not supported on this platform")
}
