package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenSecretCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"gen-secret", "--bytes", "32"})

	require.NoError(t, cmd.Execute())
	assert.Len(t, strings.TrimSpace(out.String()), 64)
}

func TestCreateSuperadminRequiresUsername(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"create-superadmin"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username")
}
