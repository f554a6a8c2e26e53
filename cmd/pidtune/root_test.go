package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/pidtune/internal/cli"
	"github.com/aretw0/pidtune/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"unexpected argument", []string{"tune", "extra"}},
		{"bad flag value", []string{"--distance", "far"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(context.Background(), tt.args)
			require.Error(t, err)
			assert.Equal(t, cli.ExitUsage, cli.ExitCode(err))
		})
	}
}

func TestApplyFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pidtune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("axis:\n  id: \"2\"\ndisplay:\n  distance: 50\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "--distance", "20", "--timeout", "500ms", "--no-banner", "--journal", "memory"})
	var got config.Config
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		got, err = loadConfig(cmd)
		return err
	}
	require.NoError(t, root.Execute())

	assert.Equal(t, "2", got.Axis.ID, "file value kept")
	assert.Equal(t, 20.0, got.Display.Distance, "flag wins over file")
	assert.Equal(t, 500*time.Millisecond, got.Controller.Timeout)
	assert.False(t, got.Display.Banner)
	assert.Equal(t, config.JournalMemory, got.Journal.Backend)
	assert.Equal(t, 1e-3, got.Axis.UnitFactor, "default kept")
}

func TestTune_QuitsCleanly(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader("q\n"))
	root.SetOut(&out)
	root.SetArgs([]string{"tune", "--driver", "sim", "--no-banner", "--log-level", "error"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "P=")
}

func TestVersion(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "pidtune version "))
}
