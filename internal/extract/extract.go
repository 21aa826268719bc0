// Package extract turns a free-text chat message into structured groundwater
// location queries by asking a language model and strictly validating its JSON.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/llm"
	"github.com/lox/groundwater/internal/metrics"
	"github.com/lox/groundwater/internal/models"
)

const promptTemplate = `Current Date: %s
User Input: %q
Task: Decide whether the user is asking for groundwater level data.
If they are, list every district or city they mention, infer the Indian state each belongs to,
and give a date range. When the user gives no dates, use the 30 days ending on the current date.
Return ONLY raw JSON in this format, with no commentary:
{
  "is_data_request": true,
  "locations": [
    { "district": "Name", "state": "State", "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD" }
  ]
}
If the message is not a data request, return {"is_data_request": false, "locations": []}.`

// Extractor owns the prompt contract and response validation for parameter extraction.
type Extractor struct {
	llm    llm.Client
	logger *zap.Logger
}

func New(client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// BuildPrompt renders the extraction prompt for a message and reference date.
func BuildPrompt(text string, ref time.Time) string {
	return fmt.Sprintf(promptTemplate, ref.Format(models.DateLayout), text)
}

// Extract never fails: any model or validation error degrades to NotDataRequest.
func (e *Extractor) Extract(ctx context.Context, text string, ref time.Time) models.ExtractionResult {
	reply, err := e.llm.Complete(ctx, BuildPrompt(text, ref), llm.WithTemperature(0))
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("extract", "error").Inc()
		e.logger.Warn("parameter extraction call failed", zap.Error(err))
		return models.NotDataRequest()
	}
	metrics.LLMCallsTotal.WithLabelValues("extract", "ok").Inc()

	result, err := Parse(reply, ref)
	if err != nil {
		e.logger.Warn("parameter extraction reply rejected", zap.Error(err), zap.String("reply", reply))
		return models.NotDataRequest()
	}
	return result
}

type payload struct {
	IsDataRequest *bool             `json:"is_data_request"`
	Locations     []json.RawMessage `json:"locations"`
}

// Parse validates a model reply. A non-nil error means the reply must not be trusted;
// the returned result is then NotDataRequest.
func Parse(reply string, ref time.Time) (models.ExtractionResult, error) {
	body := StripFences(reply)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var p payload
	if err := dec.Decode(&p); err != nil {
		return models.NotDataRequest(), fmt.Errorf("decode reply: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.NotDataRequest(), fmt.Errorf("trailing data after JSON object")
	}
	if p.IsDataRequest == nil {
		return models.NotDataRequest(), fmt.Errorf("missing boolean is_data_request")
	}
	if !*p.IsDataRequest {
		return models.NotDataRequest(), nil
	}

	result := models.ExtractionResult{IsDataRequest: true, Locations: []models.LocationQuery{}}
	for _, raw := range p.Locations {
		loc, ok := parseLocation(raw, ref)
		if !ok {
			continue
		}
		result.Locations = append(result.Locations, loc)
	}
	return result, nil
}

// StripFences removes markdown code fences the model tends to wrap JSON in.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func parseLocation(raw json.RawMessage, ref time.Time) (models.LocationQuery, bool) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.LocationQuery{}, false
	}

	district := stringField(fields, "district")
	if district == "" {
		return models.LocationQuery{}, false
	}

	end := referenceDay(ref)
	if t, ok := parseDate(stringField(fields, "end_date")); ok {
		end = t
	}
	// A missing start trails whichever end applies.
	start := end.Add(-models.DefaultWindow)
	if t, ok := parseDate(stringField(fields, "start_date")); ok {
		start = t
	}
	if start.After(end) {
		start, end = end, start
	}

	return models.LocationQuery{
		District:  district,
		State:     stringField(fields, "state"),
		StartDate: start,
		EndDate:   end,
	}, true
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return referenceDay(t), true
	}
	return time.Time{}, false
}

// referenceDay truncates t to midnight UTC of its calendar date.
func referenceDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
