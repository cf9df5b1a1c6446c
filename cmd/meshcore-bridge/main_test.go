package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdPassesConfigPath(t *testing.T) {
	var got string
	cmd := newRootCmd(func(path string) error {
		got = path
		return nil
	})
	cmd.SetArgs([]string{"--config", "configs/prod.yaml"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "configs/prod.yaml", got)
}

func TestRootCmdDefaultsToEmptyPath(t *testing.T) {
	called := false
	cmd := newRootCmd(func(path string) error {
		called = true
		assert.Empty(t, path)
		return nil
	})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.True(t, called)
}

func TestRootCmdRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCmd(func(string) error {
		t.Fatal("run must not be called")
		return nil
	})
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
