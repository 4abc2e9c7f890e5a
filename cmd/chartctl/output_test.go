package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tschart/pkg/chart"
	"tschart/pkg/core"
)

var sampleNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleResult(n int) chart.ChartResult {
	step := true
	data := core.ChartData{}
	for i := 0; i < n; i++ {
		data.X = append(data.X, int64(i)*60000)
		data.Y = append(data.Y, core.NumberValue(float64(i)+0.5))
	}
	return chart.ChartResult{
		Timeseries: core.ByExternalID("pump-1"),
		Data:       data,
		Metadata: core.ChartMetadata{
			NumberOfPoints: n,
			DataFetchMode:  core.FetchModeRaw,
			IsStep:         &step,
			Unit:           "bar",
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, sampleResult(1200)))

	out := buf.String()
	assert.Contains(t, out, "externalId:pump-1")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "bar")
	assert.Contains(t, out, "1970-01-01T00:00:00Z")
	assert.Contains(t, out, "0.5")
	assert.Contains(t, out, "1199.5")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, sampleResult(2)))

	var decoded chart.ChartResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []int64{0, 60000}, decoded.Data.X)
	assert.Equal(t, "bar", decoded.Metadata.Unit)
}

func TestWriteYAML(t *testing.T) {
	result := sampleResult(2)
	result.Data.Y[1] = core.StringValue("OPEN")

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, result))

	var decoded yamlDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "externalId:pump-1", decoded.Series)
	assert.Equal(t, "raw", decoded.Mode)
	require.Len(t, decoded.Points, 2)
	assert.Equal(t, "1970-01-01T00:01:00Z", decoded.Points[1].Time)
	assert.Equal(t, 0.5, decoded.Points[0].Value)
	assert.Equal(t, "OPEN", decoded.Points[1].Value)
}

func TestBuildRequest(t *testing.T) {
	*externalID = "pump-1"
	*start, *end = "", ""
	*mode = "aggregate"
	defer func() { *externalID, *mode = "", "" }()

	req, err := buildRequest(sampleNow)
	require.NoError(t, err)
	require.NotNil(t, req.Query.DateRange)
	assert.Equal(t, sampleNow, req.Query.DateRange.End)
	assert.Equal(t, sampleNow.Add(-*window), req.Query.DateRange.Start)
	assert.Equal(t, core.DataFetchModeAggregate, req.Options.Mode)

	*start = "1000"
	_, err = buildRequest(sampleNow)
	assert.Error(t, err)
	*start = ""
}
