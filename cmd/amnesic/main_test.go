package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever it wrote, mirroring the teacher's captureOutput test helper.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = old

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func resetFlags() {
	flagConfigFile = ""
	flagRoot = nil
	flagModel = ""
	flagProvider = ""
	flagTurns = 0
	flagCacheDir = ""
	flagDebug = false
}

// TestRunMissionHaltsInOneTurn exercises the full CLI wiring path against
// the deterministic local driver, which always proposes halt_and_ask —
// so a single Step() should halt the session and print a summary.
func TestRunMissionHaltsInOneTurn(t *testing.T) {
	resetFlags()
	defer resetFlags()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(root+"/a.txt", []byte("val_x = 42"), 0o644))

	flagRoot = []string{root}
	flagCacheDir = t.TempDir()
	flagProvider = "local"
	flagModel = "local-deterministic"

	out := captureStdout(t, func() {
		err := runMission(rootCmd, []string{"inspect a.txt"})
		require.NoError(t, err)
	})

	require.Contains(t, out, "hypothesis:")
	require.Contains(t, out, "turns: 1")
}

func TestRunMissionRejectsWrongArgCount(t *testing.T) {
	resetFlags()
	defer resetFlags()

	err := rootCmd.Args(rootCmd, []string{})
	require.Error(t, err)

	err = rootCmd.Args(rootCmd, []string{"one", "two"})
	require.Error(t, err)

	err = rootCmd.Args(rootCmd, []string{"one mission string"})
	require.NoError(t, err)
}

func TestRunMissionConfigFileNotFoundIsDefaults(t *testing.T) {
	resetFlags()
	defer resetFlags()

	flagConfigFile = t.TempDir() + "/does-not-exist.yaml"
	flagRoot = []string{t.TempDir()}
	flagCacheDir = t.TempDir()

	_ = captureStdout(t, func() {
		err := runMission(rootCmd, []string{"quick check"})
		require.NoError(t, err)
	})
}
