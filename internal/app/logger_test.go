package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "JSON"})

	logger.Debug("hidden")
	require.Zero(t, buf.Len())

	logger.Info("settlement batch finished")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "settlement batch finished", entry["msg"])
	require.Equal(t, "crossbridge", entry["service"])
	require.Equal(t, "production", entry["env"])
	require.Contains(t, entry, "source")
}

func TestNewLoggerTextDefaults(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, nil).Debug("visible")
	require.Contains(t, buf.String(), "msg=visible")
	require.Contains(t, buf.String(), "service=crossbridge")
}
