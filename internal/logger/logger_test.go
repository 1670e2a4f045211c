package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColoredHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColoredHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Debug("hidden")
	assert.Empty(t, buf.String(), "below level")

	ctx := WithRequestID(context.Background(), "req-1")
	log.With("component", "loader").InfoContext(ctx, "summary built", "rows", 3)

	out := buf.String()
	assert.Contains(t, out, "[req-1]")
	assert.Contains(t, out, "summary built")
	assert.Contains(t, out, `component`+reset+`="loader"`)
	assert.Contains(t, out, `rows`+reset+`=3`)
	assert.Contains(t, out, "INFO")
}

func TestColoredHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColoredHandler(&buf, nil)).WithGroup("http")
	log.Warn("slow", "ms", 1200)
	assert.Contains(t, buf.String(), "http.ms")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}
