package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsTaggedJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		slog.SetDefault(prev)
	})

	var buf bytes.Buffer
	l := setup(&buf, "parking-api", "test", "warn")

	l.Info("dropped")
	Component(l, "admission").Warn("kept", slog.String("spot", "7"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "parking-api", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "admission", line["component"])
	require.Equal(t, "7", line["spot"])
	require.Contains(t, line, "timestamp")
}

func TestStdlibLoggerIsBridged(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
		slog.SetDefault(prev)
	})

	var buf bytes.Buffer
	setup(&buf, "sim", "", "info")
	log.Print("from echo")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "from echo", line["message"])
	require.NotContains(t, line, "env")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
