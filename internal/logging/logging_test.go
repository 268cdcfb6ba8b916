package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/config"
)

func TestNewJSONFormatterAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(config.LogsSettings{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())

	Component(logger, "gateway").WithField("operation", "list").Debug("request sent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "gateway", entry["component"])
	require.Equal(t, "list", entry["operation"])
	require.Equal(t, "request sent", entry["msg"])
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(config.LogsSettings{Level: "loud"})
	require.Error(t, err)

	_, err = New(config.LogsSettings{Level: "info", Format: "xml"})
	require.Error(t, err)
}
