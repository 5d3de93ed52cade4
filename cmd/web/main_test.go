package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version, strings.TrimSpace(out.String()))
}

func TestAccountAdd_RequiresFlags(t *testing.T) {
	var out bytes.Buffer
	cmd := accountCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"add", "--role", "admin"})

	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "email")
}
