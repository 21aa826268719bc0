// Package agent drives one conversational turn: parameter extraction, per-location
// fetch and normalization, aggregation and a grounded reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/groundwater/internal/compare"
	"github.com/lox/groundwater/internal/llm"
	"github.com/lox/groundwater/internal/metrics"
	"github.com/lox/groundwater/internal/models"
	"github.com/lox/groundwater/internal/normalize"
	"github.com/lox/groundwater/internal/store"
	"github.com/lox/groundwater/internal/wris"
)

const Greeting = "Hello! I can compare groundwater trends for you."

const askLocationsReply = `Please name the districts you'd like me to compare (for example: "Compare Bhopal and Raipur").`

type Extractor interface {
	Extract(ctx context.Context, text string, ref time.Time) models.ExtractionResult
}

type Fetcher interface {
	Fetch(ctx context.Context, q models.LocationQuery) ([]byte, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, request string, ds models.Dataset) string
}

// Searcher returns an overview snippet for a query; empty means none available.
type Searcher interface {
	Overview(ctx context.Context, query string) (string, error)
}

type MessageLog interface {
	LogMessage(ctx context.Context, e models.LogEntry) error
}

type TurnRecorder interface {
	StartTurnRun(ctx context.Context, sessionID string) (*store.TurnRun, error)
	CompleteTurnRun(ctx context.Context, run *store.TurnRun) error
}

// Kind is the branch a turn ended in.
type Kind string

const (
	KindGeneral      Kind = "general"
	KindAskLocations Kind = "ask_locations"
	KindComparison   Kind = "comparison"
	KindNoData       Kind = "no_data"
)

// Result describes what happened during a turn.
type Result struct {
	Kind        Kind
	Reply       string
	Requested   []string
	Loaded      []string
	Unavailable []string
	Progress    []string
}

type Agent struct {
	extractor   Extractor
	fetcher     Fetcher
	summarizer  Summarizer
	llm         llm.Client
	search      Searcher
	messages    MessageLog
	turns       TurnRecorder
	clock       clockwork.Clock
	concurrency int
	logger      *zap.Logger
}

func New(extractor Extractor, fetcher Fetcher, summarizer Summarizer, client llm.Client, logger *zap.Logger) *Agent {
	return &Agent{
		extractor:   extractor,
		fetcher:     fetcher,
		summarizer:  summarizer,
		llm:         client,
		clock:       clockwork.NewRealClock(),
		concurrency: 1,
		logger:      logger,
	}
}

// SetSearcher enables web-search grounding for general replies.
func (a *Agent) SetSearcher(s Searcher) {
	a.search = s
}

// SetMessageLog enables best-effort logging of every chat message.
func (a *Agent) SetMessageLog(l MessageLog) {
	a.messages = l
}

// SetTurnRecorder enables per-turn auditing.
func (a *Agent) SetTurnRecorder(r TurnRecorder) {
	a.turns = r
}

// SetClock replaces the source of the reference date.
func (a *Agent) SetClock(c clockwork.Clock) {
	a.clock = c
}

// SetConcurrency bounds how many locations are fetched at once. 1 is sequential.
func (a *Agent) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	a.concurrency = n
}

// NewSession returns a fresh session seeded with the greeting.
func (a *Agent) NewSession() models.SessionState {
	return models.SessionState{
		ID:      uuid.NewString(),
		History: []models.ChatTurn{{Sender: models.SenderAssistant, Content: Greeting}},
	}
}

// Reset discards history and dataset and issues a new session id.
func (a *Agent) Reset(models.SessionState) models.SessionState {
	return a.NewSession()
}

// Turn runs the whole pipeline for one user message and returns the updated state.
// The user's message is appended before any external call is made.
func (a *Agent) Turn(ctx context.Context, state models.SessionState, text string) (models.SessionState, Result) {
	state.History = append(slices.Clone(state.History), models.ChatTurn{Sender: models.SenderUser, Content: text})
	a.logMessage(ctx, state.ID, models.SenderUser, text)

	run := a.startRun(ctx, state.ID)

	res := a.respond(ctx, &state, text)

	state.History = append(state.History, models.ChatTurn{Sender: models.SenderAssistant, Content: res.Reply})
	a.logMessage(ctx, state.ID, models.SenderAssistant, res.Reply)

	a.completeRun(ctx, run, res, state.Dataset)
	metrics.TurnsTotal.WithLabelValues(string(res.Kind)).Inc()

	a.logger.Info("turn complete",
		zap.String("session", state.ID),
		zap.String("kind", string(res.Kind)),
		zap.Strings("loaded", res.Loaded),
		zap.Strings("unavailable", res.Unavailable))
	return state, res
}

func (a *Agent) respond(ctx context.Context, state *models.SessionState, text string) Result {
	extraction := a.extractor.Extract(ctx, text, a.clock.Now())

	if !extraction.IsDataRequest {
		return Result{Kind: KindGeneral, Reply: a.generalReply(ctx, text)}
	}
	if len(extraction.Locations) == 0 {
		return Result{Kind: KindAskLocations, Reply: askLocationsReply}
	}

	res := Result{}
	for _, q := range extraction.Locations {
		res.Requested = append(res.Requested, q.Label())
		res.Progress = append(res.Progress, fmt.Sprintf("Fetching %s...", q.Label()))
	}

	tables := a.collect(ctx, extraction.Locations)
	var loaded []models.Table
	for i, t := range tables {
		if t == nil {
			res.Unavailable = append(res.Unavailable, extraction.Locations[i].Label())
			continue
		}
		loaded = append(loaded, *t)
		res.Loaded = append(res.Loaded, t.Location)
	}

	if len(loaded) == 0 {
		// The previously displayed dataset stays as it was.
		res.Kind = KindNoData
		res.Reply = fmt.Sprintf("No data found for those locations (%s).", strings.Join(res.Unavailable, ", "))
		return res
	}

	ds := compare.Aggregate(loaded)
	state.Dataset = &ds

	res.Kind = KindComparison
	res.Reply = a.summarizer.Summarize(ctx, text, ds)
	if len(res.Unavailable) > 0 {
		res.Reply += fmt.Sprintf("\n\nNo data found for: %s.", strings.Join(res.Unavailable, ", "))
	}
	return res
}

// collect fetches and normalizes every location; failed slots are nil.
// Results keep the order of locs regardless of concurrency.
func (a *Agent) collect(ctx context.Context, locs []models.LocationQuery) []*models.Table {
	out := make([]*models.Table, len(locs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, q := range locs {
		g.Go(func() error {
			out[i] = a.fetchOne(ctx, q)
			return nil
		})
	}
	g.Wait()
	return out
}

func (a *Agent) fetchOne(ctx context.Context, q models.LocationQuery) *models.Table {
	label := q.Label()

	raw, err := a.fetcher.Fetch(ctx, q)
	if err != nil {
		a.logger.Warn("location unavailable", zap.String("location", label), zap.Error(err))
		return nil
	}

	table, err := normalize.Normalize(raw, label)
	if err != nil {
		reason := "unknown"
		var rej *normalize.Rejection
		if errors.As(err, &rej) {
			reason = string(rej.Reason)
		}
		metrics.NormalizeRejections.WithLabelValues(reason).Inc()
		a.logger.Warn("location payload rejected", zap.String("location", label), zap.String("reason", reason))
		return nil
	}

	if len(table.Rows) >= wris.PageSize {
		a.logger.Debug("series may be truncated to one page", zap.String("location", label), zap.Int("rows", len(table.Rows)))
	}
	return &table
}

func (a *Agent) generalReply(ctx context.Context, text string) string {
	prompt := text
	if a.search != nil {
		snippet, err := a.search.Overview(ctx, text)
		if err != nil {
			a.logger.Warn("web search failed", zap.Error(err))
		}
		if snippet != "" {
			prompt = fmt.Sprintf("Answer the user's question. This web search overview may help:\n%s\n\nQuestion: %s", snippet, text)
		}
	}

	reply, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("general", "error").Inc()
		a.logger.Warn("general reply failed", zap.Error(err))
		return fmt.Sprintf("Sorry, I ran into a problem answering that: %v", err)
	}
	metrics.LLMCallsTotal.WithLabelValues("general", "ok").Inc()
	return reply
}

func (a *Agent) logMessage(ctx context.Context, sessionID string, sender models.Sender, content string) {
	if a.messages == nil {
		return
	}
	err := a.messages.LogMessage(ctx, models.LogEntry{
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		Timestamp: a.clock.Now().UTC(),
	})
	if err != nil {
		metrics.MessageLogFailures.Inc()
		a.logger.Warn("message log write failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (a *Agent) startRun(ctx context.Context, sessionID string) *store.TurnRun {
	if a.turns == nil {
		return nil
	}
	run, err := a.turns.StartTurnRun(ctx, sessionID)
	if err != nil {
		a.logger.Warn("start turn run", zap.Error(err))
		return nil
	}
	return run
}

func (a *Agent) completeRun(ctx context.Context, run *store.TurnRun, res Result, ds *models.Dataset) {
	if a.turns == nil || run == nil {
		return
	}
	run.Kind = string(res.Kind)
	run.LocationsRequested = len(res.Requested)
	run.LocationsSucceeded = len(res.Loaded)
	run.Unavailable = res.Unavailable
	if res.Kind == KindComparison && ds != nil {
		run.RowsLoaded = len(ds.Rows)
	}
	if err := a.turns.CompleteTurnRun(ctx, run); err != nil {
		a.logger.Warn("complete turn run", zap.Error(err))
	}
}
