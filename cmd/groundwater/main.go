package main

import (
	"os"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/config"
)

type CLI struct {
	Config config.Config `embed:""`

	Serve   ServeCmd   `cmd:"" help:"Run the web chat and JSON API."`
	Chat    ChatCmd    `cmd:"" help:"Chat with the assistant in the terminal."`
	Ask     AskCmd     `cmd:"" help:"Answer a single message and exit."`
	Turns   TurnsCmd   `cmd:"" help:"List recently completed turns."`
	History HistoryCmd `cmd:"" help:"Print the logged messages of a session."`
	Payload PayloadCmd `cmd:"" help:"Print the latest archived provider payload for a location."`
	Cleanup CleanupCmd `cmd:"" help:"Delete archived provider payloads older than the retention period."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("groundwater"),
		kong.Description("Conversational comparison of groundwater levels across Indian districts."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger, err := newLogger(cli.Config.Debug)
	if err != nil {
		os.Stderr.WriteString("create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := kctx.Run(&cli.Config, logger); err != nil {
		logger.Fatal("command failed", zap.String("command", kctx.Command()), zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
