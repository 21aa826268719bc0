// Package compare combines normalized location series, computes descriptive
// statistics and asks the language model for a grounded comparison.
package compare

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/llm"
	"github.com/lox/groundwater/internal/metrics"
	"github.com/lox/groundwater/internal/models"
)

// Aggregate concatenates tables in order. Each row keeps its own location label.
func Aggregate(tables []models.Table) models.Dataset {
	n := 0
	for _, t := range tables {
		n += len(t.Rows)
	}
	rows := make([]models.Row, 0, n)
	for _, t := range tables {
		rows = append(rows, t.Rows...)
	}
	return models.Dataset{Rows: rows}
}

// Stats is the five-number summary plus mean and sample deviation of one series.
type Stats struct {
	Location string  `json:"location"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Q1       float64 `json:"q1"`
	Median   float64 `json:"median"`
	Q3       float64 `json:"q3"`
	Max      float64 `json:"max"`
}

// Describe computes Stats for every location in ds, in first-seen order.
func Describe(ds models.Dataset) []Stats {
	values := make(map[string][]float64)
	for _, r := range ds.Rows {
		values[r.Location] = append(values[r.Location], r.Value)
	}

	var out []Stats
	for _, label := range ds.Locations() {
		out = append(out, describe(label, values[label]))
	}
	return out
}

func describe(label string, vals []float64) Stats {
	s := Stats{Location: label, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Mean = sum / float64(len(sorted))

	if len(sorted) > 1 {
		var sq float64
		for _, v := range sorted {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(sorted)-1))
	}

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q3 = quantile(sorted, 0.75)
	return s
}

// quantile interpolates linearly between the closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// FormatStats renders stats as a fixed-width table for the prompt.
func FormatStats(stats []Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %6s %9s %9s %9s %9s %9s %9s %9s\n",
		"location", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-20s %6d %9.3f %9.3f %9.3f %9.3f %9.3f %9.3f %9.3f\n",
			s.Location, s.Count, s.Mean, s.Std, s.Min, s.Q1, s.Median, s.Q3, s.Max)
	}
	return b.String()
}

// BuildPrompt embeds the request, the locations and their statistics.
func BuildPrompt(request string, ds models.Dataset) string {
	labels := ds.Locations()
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n", request)
	fmt.Fprintf(&b, "Locations with data: %s\n\n", strings.Join(labels, ", "))
	b.WriteString("Groundwater level statistics (metres; more negative means deeper below ground):\n")
	b.WriteString(FormatStats(Describe(ds)))
	b.WriteString(`
Using only the statistics above, write a short comparative analysis that:
1. Identifies which location has the deeper (more negative) groundwater level.
2. Assesses whether each location looks stable or shows depletion over the period.
3. Highlights the key differences between the locations.`)
	if len(labels) == 1 {
		b.WriteString("\nOnly one location has data, so describe its level and stability.")
	}
	return b.String()
}

// Summarizer produces the comparison text for a dataset.
type Summarizer struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewSummarizer(client llm.Client, logger *zap.Logger) *Summarizer {
	return &Summarizer{llm: client, logger: logger}
}

// Summarize returns the model reply verbatim, or a readable error message.
func (s *Summarizer) Summarize(ctx context.Context, request string, ds models.Dataset) string {
	reply, err := s.llm.Complete(ctx, BuildPrompt(request, ds))
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("summarize", "error").Inc()
		s.logger.Warn("comparison summary failed", zap.Error(err))
		return fmt.Sprintf("Sorry, I couldn't generate the comparison analysis right now (%v).", err)
	}
	metrics.LLMCallsTotal.WithLabelValues("summarize", "ok").Inc()
	return reply
}
