//go:build unix

package opsys

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

func dropPrivileges(umask int, group, user_ string) error {
	if umask != 0 {
		syscall.Umask(umask)
	}
	if group != "" {
		gid, err := resolveGID(group)
		if err != nil {
			return fmt.Errorf("opsys: resolving group %q: %w", group, err)
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("opsys: setgid(%d): %w", gid, err)
		}
	}
	if user_ != "" {
		uid, err := resolveUID(user_)
		if err != nil {
			return fmt.Errorf("opsys: resolving user %q: %w", user_, err)
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("opsys: setuid(%d): %w", uid, err)
		}
	}
	return nil
}

func resolveGID(name string) (int, error) {
	if g, err := user.LookupGroup(name); err == nil {
		return strconv.Atoi(g.Gid)
	}
	return strconv.Atoi(name)
}

func resolveUID(name string) (int, error) {
	if u, err := user.Lookup(name); err == nil {
		return strconv.Atoi(u.Uid)
	}
	return strconv.Atoi(name)
}
