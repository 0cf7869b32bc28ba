package common

import (
	"bytes"
	"os"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
)

// captureLogs redirects the package loggers into a buffer for the duration of the test
func captureLogs(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		SetLogClient(0)
	})
	return &buf
}

func TestLoggerLabelsClient(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("lockmgr")

	l.Infof("acquired %q", "job")
	assert.Contains(t, buf.String(), "INFO  | lockmgr  | client - | acquired \"job\"")

	buf.Reset()
	SetLogClient(4711)
	l.Warningf("lost")
	assert.Contains(t, buf.String(), "WARN  | lockmgr  | client 4711 | lost")
}

func TestLoggerLevel(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("table")

	l.Debugf("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(logger.DEBUG)
	l.Debugf("shown")
	assert.Contains(t, buf.String(), "DEBUG | table    | client - | shown")

	buf.Reset()
	l.SetLevel(logger.ERROR)
	l.Warningf("hidden")
	assert.Empty(t, buf.String())
}

func TestLoggerPanic(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("cmd")

	assert.PanicsWithValue(t, "broken 1", func() { l.Panicf("broken %d", 1) })
	assert.Contains(t, buf.String(), "PANIC | cmd      | client - | broken 1")
}
