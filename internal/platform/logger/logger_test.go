package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomLevelsAreNamed(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, true)

	log.Log(context.Background(), LevelSecurity, "intrusion")
	log.Log(context.Background(), LevelAudit, "export")
	log.Debug("hidden in production")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "SECURITY", first["level"])
	assert.Equal(t, "AUDIT", second["level"])
}

func TestDevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, false).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "k=v")
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "INFO", LevelName(slog.LevelInfo))
	assert.Equal(t, "ERROR", LevelName(slog.LevelError))
	assert.Equal(t, "AUDIT", LevelName(LevelAudit))
	assert.Equal(t, "SECURITY", LevelName(LevelSecurity))
}
