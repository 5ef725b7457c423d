package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicySetCmd_RequiresCategoriesFlag(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"policy", "set", "--daily-limit", "5"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--categories")
}
