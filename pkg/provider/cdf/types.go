package cdf

import "tschart/pkg/core"

// datapointsQuery data/list 请求体
type datapointsQuery struct {
	Items                []queryItem `json:"items"`
	Start                *int64      `json:"start,omitempty"`
	End                  *int64      `json:"end,omitempty"`
	Limit                int         `json:"limit,omitempty"`
	Aggregates           []string    `json:"aggregates,omitempty"`
	Granularity          string      `json:"granularity,omitempty"`
	IncludeOutsidePoints bool        `json:"includeOutsidePoints,omitempty"`
	IgnoreUnknownIDs     bool        `json:"ignoreUnknownIds,omitempty"`
}

type queryItem struct {
	ID         int64  `json:"id,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

// datapointsResponse data/list 响应体
type datapointsResponse struct {
	Items []responseItem `json:"items"`
}

type responseItem struct {
	ID         int64                      `json:"id"`
	ExternalID string                     `json:"externalId,omitempty"`
	IsString   bool                       `json:"isString"`
	IsStep     bool                       `json:"isStep"`
	Unit       string                     `json:"unit,omitempty"`
	Datapoints []core.TimeseriesDatapoint `json:"datapoints"`
}

// errorResponse 错误响应体
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toQuery(req core.DatapointsRequest) datapointsQuery {
	q := datapointsQuery{
		Items:                make([]queryItem, 0, len(req.Items)),
		Start:                req.Start,
		End:                  req.End,
		Limit:                req.Limit,
		Aggregates:           req.Aggregates,
		Granularity:          req.Granularity,
		IncludeOutsidePoints: req.IncludeOutsidePoints,
	}
	for _, item := range req.Items {
		q.Items = append(q.Items, queryItem{ID: item.ID, ExternalID: item.ExternalID})
	}
	return q
}

func (r responseItem) toResult() core.DatapointsResult {
	dps := r.Datapoints
	if dps == nil {
		dps = []core.TimeseriesDatapoint{}
	}
	return core.DatapointsResult{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		IsString:   r.IsString,
		IsStep:     r.IsStep,
		Unit:       r.Unit,
		Datapoints: dps,
	}
}
