// Package opsys provides OS-level process hardening collaborators —
// currently privilege drop — wired into a ProcessBus on START.
package opsys

import "github.com/cherrypy/magicbus"

// DropPrivileges builds a START listener that sets the process group and
// user IDs to the named group/user, in that order (group first, since
// dropping the user first would revoke the permission needed to change
// group). Leaving either name empty skips that half of the drop. On
// platforms without setuid/setgid (see privileges_other.go) the umask is
// ignored, and the listener returns nil when both names are empty and an
// error otherwise; it logs nothing.
func DropPrivileges(umask int, group, user string) magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		return nil, dropPrivileges(umask, group, user)
	}
}
