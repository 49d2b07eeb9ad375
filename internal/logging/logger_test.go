package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyhost.log")

	logger, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Session started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Session started"`)
	assert.Contains(t, string(data), `"timestamp":`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewDevelopmentLevel(t *testing.T) {
	logger, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestOutputs(t *testing.T) {
	assert.Equal(t, []string{"stdout"}, outputs(""))
	assert.Equal(t, []string{"stdout", "/tmp/ptyhost.log"}, outputs("/tmp/ptyhost.log"))
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		b.WriteString("line ")
		b.WriteString(string(rune('0' + i%10)))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, err := ReadTail(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 8", "line 9", "line 0"}, lines)

	all, err := ReadTail(path, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestReadTailErrors(t *testing.T) {
	_, err := ReadTail("", 10)
	assert.ErrorIs(t, err, ErrNoLogFile)

	_, err = ReadTail(filepath.Join(t.TempDir(), "missing.log"), 10)
	assert.Error(t, err)
}
