package opsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropPrivilegesNoopWhenUnset(t *testing.T) {
	listener := DropPrivileges(0, "", "")
	_, err := listener()
	assert.NoError(t, err)
}
