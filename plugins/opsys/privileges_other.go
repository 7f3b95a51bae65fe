//go:build !unix

package opsys

import "errors"

func dropPrivileges(umask int, group, user string) error {
	if group == "" && user == "" {
		return nil
	}
	return errors.New("opsys: privilege drop is not supported on this platform")
}
