package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
)

func TestChartQuery_Validate(t *testing.T) {
	assert.NoError(t, ChartQuery{Timeseries: core.ByID(1)}.Validate())

	invalid := []ChartQuery{
		{},
		{Timeseries: core.ByID(1), NumberOfPoints: -1},
		{Timeseries: core.ByID(1), DateRange: core.NewDateRange(epoch.Add(time.Hour), epoch)},
	}
	for _, q := range invalid {
		err := q.Validate()
		require.Error(t, err)
		assert.True(t, errs.HasCode(err, ErrInvalidQuery))
	}
}

func TestChartRequest_Key(t *testing.T) {
	a := ChartRequest{Query: ChartQuery{Timeseries: core.ByID(42), DateRange: weekRange(), NumberOfPoints: 500}}
	b := a
	assert.Equal(t, a.Key(), b.Key())

	b.Options.Mode = core.DataFetchModeAggregate
	assert.NotEqual(t, a.Key(), b.Key())

	open := ChartRequest{Query: ChartQuery{Timeseries: core.ByExternalID("x")}}
	assert.Equal(t, "externalId:x|-|-|0||0", open.Key())
}

func TestBuildDatapointsRequest_Raw(t *testing.T) {
	q := ChartQuery{Timeseries: core.ByExternalID("pump-1"), DateRange: weekRange()}
	req := BuildDatapointsRequest(q, core.ChartMetadata{NumberOfPoints: 300, DataFetchMode: core.FetchModeRaw}, nil)

	assert.Equal(t, []core.DatapointsQueryItem{{ExternalID: "pump-1"}}, req.Items)
	assert.Equal(t, 300, req.Limit)
	require.NotNil(t, req.Start)
	require.NotNil(t, req.End)
	assert.Equal(t, epoch.UnixMilli(), *req.Start)
	assert.Equal(t, epoch.Add(7*24*time.Hour).UnixMilli(), *req.End)
	assert.False(t, req.IsAggregate())
	assert.Empty(t, req.Granularity)
}

func TestBuildDatapointsRequest_Aggregate(t *testing.T) {
	q := ChartQuery{Timeseries: core.ByID(42), DateRange: weekRange()}
	meta := core.ChartMetadata{NumberOfPoints: 500, DataFetchMode: core.FetchModeAggregate}

	req := BuildDatapointsRequest(q, meta, nil)
	require.Len(t, req.Items, 1)
	assert.Equal(t, int64(42), req.Items[0].ID)
	assert.Equal(t, 500, req.Limit)
	assert.Equal(t, DefaultAggregates, req.Aggregates)
	assert.Equal(t, "21m", req.Granularity)

	// 调用方的聚合字段不与默认值共享底层数组
	custom := []string{"average"}
	req = BuildDatapointsRequest(q, meta, custom)
	assert.Equal(t, []string{"average"}, req.Aggregates)
	req.Aggregates[0] = "max"
	assert.Equal(t, "average", custom[0])
}

func TestBuildDatapointsRequest_NoRange(t *testing.T) {
	q := ChartQuery{Timeseries: core.ByID(7)}
	req := BuildDatapointsRequest(q, core.ChartMetadata{NumberOfPoints: 10, DataFetchMode: core.FetchModeAggregate}, nil)

	assert.Nil(t, req.Start)
	assert.Nil(t, req.End)
	assert.Equal(t, DefaultGranularity, req.Granularity)
	assert.Equal(t, DefaultAggregates, req.Aggregates)
}
