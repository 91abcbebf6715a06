package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger_WritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docintel.log")
	log := NewFileLogger(path)
	log.Debug("Upload", "Uploading document", map[string]interface{}{"file": "a.pdf"})
	log.Warn("Hub", "Alert", nil)
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "DEBUG", first["level"])
	assert.Equal(t, "Uploading document", first["message"])
	assert.Equal(t, "Upload", first["module"])
	assert.Equal(t, map[string]interface{}{"file": "a.pdf"}, first["details"])
	assert.Contains(t, first, "timestamp")

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, map[string]interface{}{}, second["details"])
}

func TestNop_DiscardsEverything(t *testing.T) {
	log := NewNop()
	log.Error("Backend", "ignored", map[string]interface{}{"error": assert.AnError})
	assert.NoError(t, log.Sync())
}
