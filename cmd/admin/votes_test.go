package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedgerPathDefaultsToTemporaryFile(t *testing.T) {
	serverPath := filepath.Join(t.TempDir(), "votes_data.jsonl")

	path, cleanup, err := ledgerPath("")
	require.NoError(t, err)
	require.NotEqual(t, serverPath, path)
	require.Equal(t, "votes_data.jsonl", filepath.Base(path))

	dir := filepath.Dir(path)
	_, err = os.Stat(dir)
	require.NoError(t, err)
	cleanup()
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	path, cleanup, err = ledgerPath(serverPath)
	require.NoError(t, err)
	defer cleanup()
	require.Equal(t, serverPath, path)
}
