package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "node.log")
	logger := Setup("marketd", "test", Options{File: file, MaxSizeMB: 1, MaxBackups: 1})

	logger.Info("offer settled", "offer", "abc123")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Equal(t, "offer settled", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "marketd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "abc123", entry["offer"])
	require.Contains(t, entry, "timestamp")
	require.NotContains(t, entry, "msg")
}

func TestSetupWithoutFileUsesStdoutOnly(t *testing.T) {
	dir := t.TempDir()
	logger := Setup("marketd", "", Options{})
	require.NotNil(t, logger)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
