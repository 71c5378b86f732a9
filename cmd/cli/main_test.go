package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/segmentgridgo/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestRun_InvalidSearchFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	invalidHCL := `
		grid {
			n_estimators = [10
	`
	filePath := filepath.Join(t.TempDir(), "search.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0o600), "failed to set up test file")
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, logs, []string{"search", filePath})

	// --- Assert ---
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "search failed")
	require.Contains(t, runErr.Error(), "failed to parse")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"search", "--this-is-not-a-valid-flag"})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_HistoryOfEmptyLedger(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"history", filepath.Join(t.TempDir(), "runs.db")})

	require.NoError(t, err)
	require.Equal(t, "No runs recorded.\n", out.String())
}
