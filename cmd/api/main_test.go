package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-orchestrator/internal/auth"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "token", "version"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.Equal(t, 0, execute(root))
	assert.Contains(t, out.String(), "ticket-orchestrator dev")
}

func TestTokenCommandMintsParseableToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("ISSUE_TRACKER_ENABLED", "false")
	t.Setenv("NOTIFICATION_ENABLED", "false")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--subject", "agent-3", "--role", "agent"})

	require.Equal(t, 0, execute(root))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	claims, err := auth.NewTokenManager("cli-secret", 60).ParseToken(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "agent-3", claims.Subject)
	assert.Equal(t, "agent", claims.Role)
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	root := newRootCmd()
	var errOut bytes.Buffer
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&errOut)
	root.SetArgs([]string{"token"})

	assert.Equal(t, 1, execute(root))
	assert.Contains(t, errOut.String(), "subject")
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("ISSUE_TRACKER_ENABLED", "false")
	t.Setenv("NOTIFICATION_ENABLED", "false")

	root := newRootCmd()
	var errOut bytes.Buffer
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&errOut)
	root.SetArgs([]string{"token", "--subject", "agent-3"})

	assert.Equal(t, 1, execute(root))
	assert.Contains(t, errOut.String(), "AUTH_JWT_SECRET")
}
