package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(prev)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)

	InfoC("test", "should be dropped")
	WarnC("test", "should be kept")

	out := buf.String()
	assert.NotContains(t, out, "should be dropped")
	assert.Contains(t, out, "should be kept")
}

func TestComponentAndFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(DEBUG)

	ErrorCF("relay", "MCP Server Error", map[string]interface{}{
		"user_id": "42",
	})

	out := buf.String()
	assert.Contains(t, out, "MCP Server Error")
	assert.Contains(t, out, "component=relay")
	assert.Contains(t, out, "user_id=42")
}

func TestFileLogging(t *testing.T) {
	captureOutput(t)
	path := filepath.Join(t.TempDir(), "chat_logs.txt")

	require.NoError(t, EnableFileLogging(path))
	InfoCF("relay", "Relayed message", map[string]interface{}{"reply": "hi"})
	DisableFileLogging()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Relayed message")
	assert.Contains(t, string(data), "INF")
}

func TestFatalExits(t *testing.T) {
	captureOutput(t)
	code := -1
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = os.Exit })

	FatalCF("main", "boom", nil)
	assert.Equal(t, 1, code)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
