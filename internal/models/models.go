package models

import (
	"time"
)

// DateLayout is the wire format for dates exchanged with the model and the provider.
const DateLayout = "2006-01-02"

// DefaultWindow is the trailing range used when a location carries no dates.
const DefaultWindow = 30 * 24 * time.Hour

type LocationQuery struct {
	District  string
	State     string // empty means "let the provider infer"
	StartDate time.Time
	EndDate   time.Time
}

// Label is the name a location's series is tagged with.
func (q LocationQuery) Label() string {
	return q.District
}

type ExtractionResult struct {
	IsDataRequest bool
	Locations     []LocationQuery
}

// NotDataRequest is the single fallback value for any extraction failure.
func NotDataRequest() ExtractionResult {
	return ExtractionResult{IsDataRequest: false, Locations: []LocationQuery{}}
}

// Row is one normalized observation.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Location  string    `json:"location"`
	Station   string    `json:"station,omitempty"`
}

// Table is the normalized series for a single location, sorted by timestamp.
type Table struct {
	Location string
	Rows     []Row
}

// Dataset is the combined series shown for one data-bearing turn.
type Dataset struct {
	Rows []Row `json:"rows"`
}

// Locations returns the distinct labels in first-seen order.
func (d Dataset) Locations() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range d.Rows {
		if !seen[r.Location] {
			seen[r.Location] = true
			labels = append(labels, r.Location)
		}
	}
	return labels
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type ChatTurn struct {
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

type SessionState struct {
	ID      string     `json:"session_id"`
	History []ChatTurn `json:"chat_history"`
	Dataset *Dataset   `json:"comparison_dataset,omitempty"`
}

// LogEntry is one message-log record.
type LogEntry struct {
	SessionID string
	Sender    Sender
	Content   string
	Timestamp time.Time
}
