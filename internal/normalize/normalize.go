// Package normalize converts raw groundwater provider payloads into sorted,
// location-tagged time series. Provider payloads vary in shape, so record
// lists are located through an explicit, ordered list of strategies.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lox/groundwater/internal/models"
)

// Field names every provider record is expected to carry.
const (
	TimeField    = "dataTime"
	ValueField   = "dataValue"
	StationField = "stationName"
)

// Reason classifies why a payload was rejected.
type Reason string

const (
	ReasonMalformed    Reason = "malformed_json"
	ReasonNoRecords    Reason = "no_record_list"
	ReasonBadRecord    Reason = "record_not_object"
	ReasonMissingTime  Reason = "missing_time_field"
	ReasonMissingValue Reason = "missing_value_field"
	ReasonEmpty        Reason = "no_rows"
)

// Rejection is returned when a payload cannot produce a usable table.
type Rejection struct {
	Location string
	Reason   Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("normalize %s: %s", r.Location, r.Reason)
}

// Strategy tries to find the record list inside a parsed payload.
type Strategy struct {
	Name   string
	Locate func(gjson.Result) (gjson.Result, bool)
}

// WrapperKeys are the object keys that may wrap the record list, in priority order.
var WrapperKeys = []string{"content", "data", "result"}

// Strategies is the ordered list tried against every payload; the first match wins.
var Strategies = buildStrategies()

func buildStrategies() []Strategy {
	strategies := []Strategy{{
		Name: "array",
		Locate: func(v gjson.Result) (gjson.Result, bool) {
			return v, v.IsArray()
		},
	}}
	for _, key := range WrapperKeys {
		strategies = append(strategies, Strategy{
			Name: "key:" + key,
			Locate: func(v gjson.Result) (gjson.Result, bool) {
				if !v.IsObject() {
					return gjson.Result{}, false
				}
				inner := v.Get(key)
				return inner, inner.IsArray()
			},
		})
	}
	return strategies
}

// maxDepth bounds how many nested wrapper objects are unwrapped.
const maxDepth = 3

// LocateRecords applies Strategies in order, descending into wrapper objects
// up to maxDepth levels. It reports the name of the strategy that matched.
func LocateRecords(v gjson.Result) (gjson.Result, string, bool) {
	for depth := 0; depth < maxDepth; depth++ {
		for _, s := range Strategies {
			if records, ok := s.Locate(v); ok {
				return records, s.Name, true
			}
		}
		next, ok := unwrapObject(v)
		if !ok {
			break
		}
		v = next
	}
	return gjson.Result{}, "", false
}

func unwrapObject(v gjson.Result) (gjson.Result, bool) {
	if !v.IsObject() {
		return gjson.Result{}, false
	}
	for _, key := range WrapperKeys {
		inner := v.Get(key)
		if inner.IsObject() {
			return inner, true
		}
	}
	return gjson.Result{}, false
}

// Normalize validates raw and returns the rows tagged with label, sorted by time.
// Rows with an unparseable time or a non-numeric value are dropped; anything
// structurally wrong rejects the whole payload.
func Normalize(raw []byte, label string) (models.Table, error) {
	reject := func(r Reason) (models.Table, error) {
		return models.Table{}, &Rejection{Location: label, Reason: r}
	}

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return reject(ReasonMalformed)
	}

	records, _, ok := LocateRecords(gjson.ParseBytes(raw))
	if !ok {
		return reject(ReasonNoRecords)
	}

	list := records.Array()
	if len(list) == 0 {
		return reject(ReasonEmpty)
	}

	var hasTime, hasValue bool
	for _, rec := range list {
		if !rec.IsObject() {
			return reject(ReasonBadRecord)
		}
		hasTime = hasTime || rec.Get(TimeField).Exists()
		hasValue = hasValue || rec.Get(ValueField).Exists()
	}
	if !hasTime {
		return reject(ReasonMissingTime)
	}
	if !hasValue {
		return reject(ReasonMissingValue)
	}

	rows := make([]models.Row, 0, len(list))
	for _, rec := range list {
		ts, ok := ParseTime(rec.Get(TimeField))
		if !ok {
			continue
		}
		value, ok := parseValue(rec.Get(ValueField))
		if !ok {
			continue
		}
		row := models.Row{Timestamp: ts, Value: value, Location: label}
		if st := rec.Get(StationField); st.Type == gjson.String {
			row.Station = st.Str
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return reject(ReasonEmpty)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	return models.Table{Location: label, Rows: rows}, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the timestamp formats seen from the provider.
// Values without a zone are read as UTC.
func ParseTime(v gjson.Result) (time.Time, bool) {
	if v.Type != gjson.String {
		return time.Time{}, false
	}
	s := strings.TrimSpace(v.Str)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			// The zero instant is the "unset" sentinel; rows must carry a real timestamp.
			if t.IsZero() {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func parseValue(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
