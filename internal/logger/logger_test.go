package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent_JSON(t *testing.T) {
	l := New()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithComponent("forecast").WithField("hours", 6).Info("forecast complete")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "forecast complete", entry["message"])
	assert.Equal(t, "forecast", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 6, entry["hours"])
	assert.Contains(t, entry["file"], "logger_test.go")
}

func TestConfigure(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json debug", "debug", "json", false},
		{"text warn", "WARN", "text", false},
		{"bad level", "loud", "json", true},
		{"bad format", "info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Configure(tt.level, tt.format, "stderr", 0)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigure_EnvLevelWins(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	l := New()
	require.NoError(t, l.Configure("debug", "json", "stdout", 0))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
}

func TestConfigure_FileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "service.log")

	l := New()
	require.NoError(t, l.Configure("info", "text", path, 0))
	l.WithComponent("server").Info("listening")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listening")
	assert.Contains(t, string(data), "component=server")
}

func TestConfigure_RotatingOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "rotating.log")

	l := New()
	require.NoError(t, l.Configure("info", "json", path, 7))
	l.Info("rotated")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated")
}
