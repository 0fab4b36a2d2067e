package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Level)
	assert.Equal(t, "console", config.Format)
	assert.Equal(t, "stdout", config.Output)
	assert.Equal(t, time.RFC3339, config.TimeFormat)
	assert.True(t, config.Caller)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "nil config uses default",
			config: nil,
		},
		{
			name: "valid config",
			config: &Config{
				Level:      "debug",
				Format:     "json",
				Output:     "stdout",
				TimeFormat: time.RFC3339,
			},
		},
		{
			name: "invalid log level",
			config: &Config{
				Level:  "invalid",
				Format: "console",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "invalid",
				Output: "stdout",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, logger)
			if tt.config == nil {
				assert.Equal(t, "info", logger.GetLevel())
			} else {
				assert.Equal(t, tt.config.Level, logger.GetLevel())
			}
		})
	}
}

func TestLogger_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Errorf("error %d", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "warn message", first["message"])
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "error 42", second["message"])
}

func TestLogger_WithAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").
		Component("dispatcher").
		With(map[string]interface{}{"charge_point_id": "CP001"})

	l.Infof("sending %s", "Reset")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "CP001", entry["charge_point_id"])
	assert.Equal(t, "sending Reset", entry["message"])
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info")

	require.NoError(t, l.SetLevel("error"))
	assert.Equal(t, "error", l.GetLevel())

	l.Warn("suppressed")
	assert.Empty(t, buf.String())

	assert.Error(t, l.SetLevel("loud"))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "csms.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Info("nothing")
		l.With(map[string]interface{}{"k": "v"}).Errorf("still nothing")
	})
}
