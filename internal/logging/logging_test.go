package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown(42)", LogLevel(42).String())
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut := log.Writer()
	prevFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	fn()
	return buf.String()
}

func TestSetLevelFiltersMessages(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(LevelWarn)
	out := captureOutput(t, func() {
		Debug("hidden debug")
		Info("hidden info")
		Warn("shown warn")
		Error("shown error")
	})

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn")
	assert.Contains(t, out, "[ERROR] shown error")
	assert.False(t, IsDebugEnabled())
}

func TestForJobPrefix(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })
	SetLevel(LevelDebug)

	l := ForJob("0123456789abcdef", "thumbnail")
	require.Equal(t, "[job 01234567 thumbnail] ", l.Prefix())

	out := captureOutput(t, func() {
		l.Info("generated %s", "a.mp4")
	})
	assert.True(t, strings.HasPrefix(out, "[INFO] [job 01234567 thumbnail] generated a.mp4"), out)

	short := ForJob("abc", "phash")
	assert.Equal(t, "[job abc phash] ", short.Prefix())
}
