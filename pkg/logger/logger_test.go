package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestContextFieldsReachEveryLine(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithTenantID(ctx, "tenant-9")
	log.Error(ctx, "boom", errors.New("boom"))

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "tenant-9", entry["tenant_id"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf})

	parent := log.WithField(context.Background(), "job", "z-report")
	_ = log.WithField(parent, "tenant_id", "t1")
	log.Info(parent, "tick")

	entry := lastEntry(t, buf)
	assert.Equal(t, "z-report", entry["job"])
	assert.NotContains(t, entry, "tenant_id")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, WarnStack: true}).Warn(context.Background(), "warny")
	assert.Contains(t, lastEntry(t, buf), "stack")

	buf.Reset()
	New(Options{Output: buf}).Warn(context.Background(), "warny")
	assert.NotContains(t, lastEntry(t, buf), "stack")
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf}).Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	New(Options{Output: buf, Level: "bogus"}).Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	New(Options{Output: buf, Level: "debug"}).Debug(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, Format: FormatConsole}).Info(context.Background(), "hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
}
