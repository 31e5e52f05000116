package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ataa", cmd.Use)
	assert.Contains(t, cmd.Long, "field device")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"serve", "push", "pull", "autosync", "record", "seed", "score", "recompute",
		"predict", "allocate", "match", "status", "hash-password", "validate",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestSubcommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"allocate", "complete"},
		{"allocate", "cancel"},
		{"match", "run"},
		{"match", "list"},
		{"match", "transition"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestAllocateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	allocCmd, _, err := cmd.Find([]string{"allocate"})
	require.NoError(t, err)

	for _, name := range []string{"zone", "location", "max", "apply"} {
		assert.NotNil(t, allocCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0", allocCmd.Flags().Lookup("max").DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	listenFlag := serveCmd.Flags().Lookup("listen")
	require.NotNil(t, listenFlag)
	// empty means the config's listen address
	assert.Equal(t, "", listenFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"status", "--format", "xml"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
