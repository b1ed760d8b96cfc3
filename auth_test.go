package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptPassword_TrimsNewline(t *testing.T) {
	oldStdin := os.Stdin
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdin = r
	t.Cleanup(func() { os.Stdin = oldStdin })

	go func() {
		io.WriteString(w, "hunter2\n")
		w.Close()
	}()

	got, err := promptPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestWhoamiOutput_JSONShape(t *testing.T) {
	out := whoamiOutput{ID: "u1", Email: "user@example.com", Tier: "free"}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "u1", decoded["id"])
	assert.Equal(t, "user@example.com", decoded["email"])
	assert.Equal(t, "free", decoded["subscription_tier"])
}

func TestNewAuthCmd_Subcommands(t *testing.T) {
	cmd := newAuthCmd()

	expected := []string{"register", "login", "logout", "whoami"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		assert.True(t, found, "expected auth subcommand %q not found", name)
	}
}
