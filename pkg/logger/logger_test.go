package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(Config{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { Logger = nil })

	WithComponent("ChartService").WithField("series", "externalId:pump-1").Debug("fetched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ChartService", entry["component"])
	assert.Equal(t, "externalId:pump-1", entry["series"])
	assert.Equal(t, "fetched", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(Config{Level: "WARN", Format: "text"}, &buf)
	t.Cleanup(func() { Logger = nil })

	assert.Equal(t, logrus.WarnLevel, Logger.GetLevel())
	WithComponent("x").Info("hidden")
	assert.Empty(t, buf.String())

	SetLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}

func TestInitFromEnv(t *testing.T) {
	t.Setenv("TSCHART_LOG_LEVEL", "error")
	t.Setenv("TSCHART_LOG_FORMAT", "json")
	Logger = nil
	t.Cleanup(func() { Logger = nil })

	assert.Equal(t, logrus.ErrorLevel, GetLogger().GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, Logger.Formatter)
}
