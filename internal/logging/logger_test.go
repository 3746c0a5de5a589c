package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	assert.NotNil(t, logger)
	assert.Equal(t, LevelInfo, logger.level)
	assert.Equal(t, os.Stderr, logger.logger.Writer())
}

func TestLoggerLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should be suppressed")
	logger.Info("also suppressed")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestLoggerFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debug("accepted connection", "remote", "127.0.0.1:9001")
	assert.Contains(t, buf.String(), "remote=127.0.0.1:9001")
}

func TestWithHandleAndOp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	scoped := logger.WithHandle("timer", 7).WithOp("start")
	scoped.Info("armed")

	out := buf.String()
	assert.True(t, strings.Contains(out, "timer=7"))
	assert.True(t, strings.Contains(out, "op=start"))
	assert.True(t, strings.Contains(out, "armed"))
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestSetDefaultReplacesSingleton(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("routed through custom logger")
	assert.Contains(t, buf.String(), "routed through custom logger")
}
