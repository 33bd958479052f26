package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *Logger {
	return NewWithOptions(Options{Environment: "prod", Level: "debug", Out: buf})
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestWithRequestKeepsCallerID(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf)

	r := httptest.NewRequest("POST", "/ask", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	log.WithRequest(r).Info("handled")

	line := lastLine(t, &buf)
	assert.Equal(t, "abc-123", line["req_id"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/ask", line["path"])
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/healthz", nil)
	assert.Len(t, RequestID(r), 36)
}

func TestComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf).Component("assistant")

	log.WithError(errors.New("boom")).Warn("call failed")

	line := lastLine(t, &buf)
	assert.Equal(t, "assistant", line["component"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "warning", line["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Environment: "prod", Level: "error", Out: &buf})
	log.Info("hidden")
	assert.Zero(t, buf.Len())
}
