package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/osslararemellan/ole/config"
)

func fileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ole.log")
	l, err := NewLogger(&config.LoggingConfig{Level: level, Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	return l, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("writes json to file", func(t *testing.T) {
		l, path := fileLogger(t, "info")
		l.Info("directory loaded", zap.Uint("user_id", 7))
		require.NoError(t, l.Close())

		lines := readLines(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, "directory loaded", lines[0]["message"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "ole", lines[0]["service"])
		assert.EqualValues(t, 7, lines[0]["user_id"])
	})

	t.Run("level filters", func(t *testing.T) {
		l, path := fileLogger(t, "warn")
		l.Info("dropped")
		l.Warn("kept")
		require.NoError(t, l.Close())

		lines := readLines(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, "kept", lines[0]["message"])
	})

	t.Run("file output without path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "info", Output: "file"})
		assert.Error(t, err)
	})

	t.Run("console to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("hello")
		assert.NoError(t, l.Close())
	})
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestContextLogging(t *testing.T) {
	l, path := fileLogger(t, "debug")
	ctx := WithTraceID(context.Background(), "trace-abc")

	l.InfoContext(ctx, "with trace")
	l.ErrorContext(context.Background(), "without trace")
	l.WithFields(zap.String("session_id", "s1")).WarnContext(ctx, "fields")
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "trace-abc", lines[0]["trace_id"])
	_, has := lines[1]["trace_id"]
	assert.False(t, has)
	assert.Equal(t, "s1", lines[2]["session_id"])
	assert.Equal(t, "trace-abc", lines[2]["trace_id"])
}

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, path := fileLogger(t, "info")

	r := gin.New()
	r.Use(GinLogger(l), Recovery(l))
	r.GET("/ok", func(c *gin.Context) {
		c.Set("user_id", uint(3))
		assert.NotEmpty(t, GetTraceID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(TraceHeader, "given-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "given-trace", w.Header().Get(TraceHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceHeader))

	require.NoError(t, l.Close())
	lines := readLines(t, path)

	var request, panicked int
	for _, line := range lines {
		switch line["message"] {
		case "request":
			request++
			if line["path"] == "/ok" {
				assert.Equal(t, "given-trace", line["trace_id"])
				assert.EqualValues(t, 204, line["status"])
				assert.EqualValues(t, 3, line["user_id"])
			}
		case "panic in handler":
			panicked++
		}
	}
	assert.Equal(t, 2, request)
	assert.Equal(t, 1, panicked)
}
