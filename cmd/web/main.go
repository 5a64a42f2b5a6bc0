package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/envstruct"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/interview"
	"github.com/myrjola/lorebook/internal/logging"
	"github.com/myrjola/lorebook/internal/pprofserver"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/myrjola/lorebook/internal/wiki"
)

type application struct {
	logger       *slog.Logger
	interviews   *interview.Service
	orchestrator *wiki.Orchestrator
	businesses   *repositories.BusinessRepository
	builds       *repositories.BuildRepository
}

type config struct {
	OpenAIAPIKey string `env:"LOREBOOK_OPENAI_API_KEY"`
	OpenAIModel  string `env:"LOREBOOK_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

func main() {
	addr := flag.String("addr", "localhost:4000", "HTTP network address")
	pprofPort := flag.String("pprof-port", ":6060", "Port for pprof listening on localhost")
	dbURL := flag.String("sqlite-url", "./lorebook.sqlite", "SQLite URL")
	modelTimeout := flag.Duration("model-timeout", time.Minute, "Timeout for a single model call")
	modelConcurrency := flag.Int("model-concurrency", 10, "Simultaneous outbound model calls")
	buildWorkers := flag.Int("build-workers", 5, "Concurrent document generation tasks per wiki build")
	leaseTTL := flag.Duration("lease-ttl", 15*time.Minute, "Wiki build lease duration")
	flag.Parse()

	loggerHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	logger := slog.New(logging.NewContextHandler(loggerHandler))

	// Initialise pprof listening on localhost so that it's not open to the world
	pprofserver.Launch(*pprofPort, logger)

	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "no .env file loaded", errors.SlogError(err))
	}
	var cfg config
	if err := envstruct.Populate(&cfg, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "populate config", errors.SlogError(err))
		os.Exit(1)
	}

	dbs, err := sqlite.NewDatabase(ctx, *dbURL, logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "open database", errors.SlogError(err))
		os.Exit(1)
	}
	go dbs.StartDatabaseOptimizer(ctx)

	businesses := repositories.NewBusinessRepository(dbs, logger)
	interviews := repositories.NewInterviewRepository(dbs, logger)
	builds := repositories.NewBuildRepository(dbs, logger)

	governor := ai.NewGovernor(*modelConcurrency)
	completer := ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, *modelTimeout, governor, logger)
	retry := ai.DefaultRetryPolicy()

	engine := interview.NewFollowUpEngine(completer, retry, logger)
	planner := wiki.NewPlanner(completer, retry, logger)
	writer := wiki.NewWriter(completer, retry, logger)

	app := application{
		logger:       logger,
		interviews:   interview.NewService(interviews, engine, logger),
		orchestrator: wiki.NewOrchestrator(businesses, interviews, builds, planner, writer, *buildWorkers, *leaseTTL, logger),
		businesses:   businesses,
		builds:       builds,
	}

	if err = app.configureAndStartServer(ctx, *addr); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server failed", errors.SlogError(err))
		os.Exit(1)
	}
}
