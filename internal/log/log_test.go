package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Init(level, "json", &buf))
	t.Cleanup(func() { logger = newLogger() })
	return &buf
}

func TestInfo_WritesCategoryAndFields(t *testing.T) {
	buf := captureJSON(t, "info")

	Info(CatRegistration, "registered", "event_id", "e1", "position", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "registered", line["msg"])
	require.Equal(t, "registration", line["category"])
	require.Equal(t, "e1", line["event_id"])
	require.EqualValues(t, 2, line["position"])
}

func TestDebug_FilteredByLevel(t *testing.T) {
	buf := captureJSON(t, "info")

	Debug(CatDB, "hidden")
	require.Zero(t, buf.Len())
}

func TestErrorErr_AttachesError(t *testing.T) {
	buf := captureJSON(t, "debug")

	ErrorErr(CatNotify, "dispatch failed", errors.New("queue full"), "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "queue full", line["error"])
	require.Equal(t, "<missing>", line["dangling"])
	require.Equal(t, "error", line["level"])
}

func TestInit_RejectsUnknownSettings(t *testing.T) {
	t.Cleanup(func() { logger = newLogger() })
	require.Error(t, Init("loud", "text", nil))
	require.Error(t, Init("info", "xml", nil))
}
