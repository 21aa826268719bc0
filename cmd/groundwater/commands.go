package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/agent"
	"github.com/lox/groundwater/internal/api"
	"github.com/lox/groundwater/internal/chart"
	"github.com/lox/groundwater/internal/config"
	"github.com/lox/groundwater/internal/models"
	"github.com/lox/groundwater/internal/session"
)

type ServeCmd struct {
	Port string `default:"8080" env:"PORT" help:"HTTP server port."`
}

func (c *ServeCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	clock := clockwork.NewRealClock()
	server := api.NewServer(a.agent, session.NewStore(clock), chart.NewCache(10*time.Minute, clock), c.Port, logger)
	return server.Run(ctx)
}

type ChatCmd struct{}

func (c *ChatCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.agent.NewSession()
	fmt.Println(agent.Greeting)
	fmt.Println(`Type a message, "/reset" to clear the chat, or "/quit" to exit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			state = a.agent.Reset(state)
			fmt.Println(agent.Greeting)
			continue
		}

		var res agent.Result
		state, res = a.agent.Turn(ctx, state, text)
		printResult(res)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

type AskCmd struct {
	Message []string `arg:"" help:"Message to send."`
}

func (c *AskCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	_, res := a.agent.Turn(ctx, a.agent.NewSession(), strings.Join(c.Message, " "))
	printResult(res)
	return nil
}

func printResult(res agent.Result) {
	for _, p := range res.Progress {
		fmt.Println(p)
	}
	fmt.Println(res.Reply)
	fmt.Println()
}

type TurnsCmd struct {
	Limit int `default:"20" help:"Number of turns to show."`
}

func (c *TurnsCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	runs, err := st.RecentTurnRuns(ctx, c.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %-36s  %-13s  %d/%d locations  %d rows",
			r.StartedAt.Format(time.RFC3339), r.SessionID, r.Kind,
			r.LocationsSucceeded, r.LocationsRequested, r.RowsLoaded)
		if len(r.Unavailable) > 0 {
			fmt.Printf("  unavailable: %s", strings.Join(r.Unavailable, ", "))
		}
		fmt.Println()
	}

	n, err := st.CountMessages(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d messages logged\n", n)
	return nil
}

type HistoryCmd struct {
	Session string `arg:"" help:"Session id."`
}

func (c *HistoryCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	var (
		entries []models.LogEntry
		err     error
	)
	if cfg.UsePostgres() {
		entries, err = postgresHistory(ctx, cfg.DatabaseURL, c.Session)
	} else {
		entries, err = sqliteHistory(ctx, cfg, logger, c.Session)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Sender, e.Content)
	}
	return nil
}

type PayloadCmd struct {
	Location string `arg:"" help:"District label the payload was fetched for."`
}

func (c *PayloadCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	p, err := st.LatestRawPayload(ctx, c.Location)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no archived payload for %s", c.Location)
	}
	body, err := st.GetRawPayload(ctx, p.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "payload %d fetched %s (%d bytes)\n", p.ID, p.FetchedAt.Format(time.RFC3339), p.SizeBytes)
	os.Stdout.Write(body)
	fmt.Println()
	return nil
}

type CleanupCmd struct {
	RetentionDays int `default:"30" help:"Keep payloads fetched within this many days."`
}

func (c *CleanupCmd) Run(cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CleanupOldRawPayloads(context.Background(), c.RetentionDays)
	if err != nil {
		return err
	}
	logger.Info("cleaned up raw payloads", zap.Int64("deleted", n), zap.Int("retention_days", c.RetentionDays))
	return nil
}
