package api

import (
	"github.com/lox/groundwater/internal/agent"
	"github.com/lox/groundwater/internal/chart"
	"github.com/lox/groundwater/internal/compare"
	"github.com/lox/groundwater/internal/models"
)

// IndexData is rendered by index.html.
type IndexData struct {
	Session  models.SessionState
	Stats    []compare.Stats
	ChartKey string
}

func newIndexData(state models.SessionState) IndexData {
	data := IndexData{Session: state}
	if state.Dataset != nil && len(state.Dataset.Rows) > 0 {
		data.Stats = compare.Describe(*state.Dataset)
		data.ChartKey = chart.Key(*state.Dataset)[:12]
	}
	return data
}

type messageRequest struct {
	Message string `json:"message"`
}

// TurnResponse is returned for each posted message.
type TurnResponse struct {
	Kind        agent.Kind          `json:"kind"`
	Reply       string              `json:"reply"`
	Progress    []string            `json:"progress"`
	Loaded      []string            `json:"loaded"`
	Unavailable []string            `json:"unavailable"`
	Session     models.SessionState `json:"session"`
}

// DatasetResponse is the current comparison dataset with per-location statistics.
type DatasetResponse struct {
	Locations []string        `json:"locations"`
	Stats     []compare.Stats `json:"stats"`
	Rows      []models.Row    `json:"rows"`
}

type errorResponse struct {
	Error string `json:"error"`
}
