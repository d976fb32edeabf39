package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/config"
)

func TestInitializeLoggerJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	InitializeLogger(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "tb"}, &buf)
	GetLogger().Named("runner").Debug("step started", zap.String("task", "t1"))
	Sync()

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "tb.runner", line["logger"])
	assert.Equal(t, "step started", line["msg"])
	assert.Equal(t, "t1", line["task"])
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second bytes.Buffer
	InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"}, &first)
	InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"}, &second)
	GetLogger().Info("hello")

	assert.Contains(t, first.String(), "hello")
	assert.Empty(t, second.String())
}

func TestLevelFiltersAndFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tb.log")
	var buf bytes.Buffer
	l := NewLogger(config.LoggerConfig{Level: "warn", Format: "console", LogFile: path, MaxSize: 1}, &buf)

	l.Info("quiet")
	l.Warn("loud")
	require.NoError(t, l.Sync())

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"loud"`)
}

func TestGetLoggerBeforeInit(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger())
}
