package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sift/internal/api"
	"github.com/MikeSquared-Agency/sift/internal/batch"
	"github.com/MikeSquared-Agency/sift/internal/config"
	"github.com/MikeSquared-Agency/sift/internal/dispatcher"
	"github.com/MikeSquared-Agency/sift/internal/executor"
	"github.com/MikeSquared-Agency/sift/internal/format"
	"github.com/MikeSquared-Agency/sift/internal/hermes"
	"github.com/MikeSquared-Agency/sift/internal/llm"
	"github.com/MikeSquared-Agency/sift/internal/metrics"
	"github.com/MikeSquared-Agency/sift/internal/prompt"
	"github.com/MikeSquared-Agency/sift/internal/slack"
	"github.com/MikeSquared-Agency/sift/internal/store"
	"github.com/MikeSquared-Agency/sift/internal/transcript"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// sinkTimeout bounds optional result sinks once the run itself is over.
const sinkTimeout = 30 * time.Second

const natsConnectTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sift", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	opts.apply(&cfg)

	logger := setupLogging(cfg.LogLevel, stderr)

	if opts.emitSchema {
		data, err := format.Schema()
		if err != nil {
			logger.Error("build schema", "error", err)
			return exitFailed
		}
		fmt.Fprintln(stdout, string(data))
		return exitOK
	}

	lib := prompt.NewLibrary(cfg.PromptDir)
	if opts.initPrompts {
		created, err := lib.WriteDefaults()
		if err != nil {
			logger.Error("write default prompts", "dir", lib.Dir, "error", err)
			return exitFailed
		}
		for _, f := range created {
			fmt.Fprintln(stdout, filepath.Join(lib.Dir, f))
		}
		return exitOK
	}
	if opts.listPrompts {
		names, err := lib.List()
		if err != nil {
			logger.Error("list prompts", "dir", lib.Dir, "error", err)
			return exitFailed
		}
		if len(names) == 0 {
			fmt.Fprintf(stdout, "no prompts in %s (run with -init-prompts)\n", lib.Dir)
		}
		for _, n := range names {
			fmt.Fprintln(stdout, n)
		}
		return exitOK
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfig
	}

	tmpl, err := resolvePrompt(cfg, lib)
	if err != nil {
		logger.Error("load prompt", "error", err)
		return exitConfig
	}
	schema, err := transcript.ParseSchema(cfg.Schema)
	if err != nil {
		logger.Error("invalid schema", "error", err)
		return exitConfig
	}
	outFormat, err := format.ParseFormat(cfg.Format)
	if err != nil {
		logger.Error("invalid format", "error", err)
		return exitConfig
	}
	split, err := batch.ParseSplitFilter(cfg.Split)
	if err != nil {
		logger.Error("invalid split filter", "error", err)
		return exitConfig
	}
	mode := executor.ModeLive
	if cfg.Simulate {
		mode = executor.ModeSimulated
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	m := metrics.New()
	tracker := metrics.NewTracker()
	observers := dispatcher.Observers{m, tracker}
	hooks := batch.Hooks{Metrics: m, Tracker: tracker}

	if cfg.StatusAddr != "" {
		srv := api.NewServer(cfg.StatusAddr, tracker, m, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	if cfg.NatsURL != "" {
		connectCtx, cancelConnect := context.WithTimeout(ctx, natsConnectTimeout)
		nc, err := hermes.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, logger)
		cancelConnect()
		if err != nil {
			logger.Warn("run events disabled", "error", err)
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := nc.Flush(flushCtx); err != nil {
					logger.Warn("flush run events", "error", err)
				}
				nc.Close()
			}()
			events := hermes.NewEvents(nc, runID, logger)
			observers = append(observers, events)
			hooks.Events = events
			logger.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	// A nil *llm.Client must not become a non-nil Completer.
	var completer executor.Completer
	if mode == executor.ModeLive {
		client := llm.NewClient(llm.Options{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			RequestTimeout: cfg.RequestTimeout,
		})
		completer = client
		logger.Info("llm client ready", "base_url", client.BaseURL(), "model", client.Model())
	}

	exec := executor.New(completer, executor.Config{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Policy: executor.Policy{
			MaxAttempts: cfg.Attempts,
			BaseDelay:   cfg.BackoffBase,
			MaxDelay:    cfg.BackoffMax,
		},
	}, logger)

	disp := dispatcher.New(exec, dispatcher.Config{
		MaxWorkers: cfg.Workers,
		Timeout:    cfg.Timeout,
		Grace:      cfg.Grace,
	}, observers, logger)

	runner := batch.NewRunner(batch.Config{
		RunID:     runID,
		Inputs:    cfg.Inputs,
		Recursive: cfg.Recursive,
		Schema:    schema,
		Budget:    cfg.Budget,
		Template:  tmpl,
		Mode:      mode,
		Model:     cfg.Model,
		Select:    cfg.Select,
		Split:     split,
	}, disp, hooks, logger)

	logger.Info("sift starting", "run_id", runID, "prompt", tmpl.Name, "mode", mode.String(), "workers", cfg.Workers)

	report, results, err := runner.Run(ctx)
	if err != nil {
		logger.Error("run aborted", "error", err)
		if errors.Is(err, config.ErrConfiguration) {
			return exitConfig
		}
		return exitFailed
	}

	// Sinks still run after an interrupt so partial results are kept.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	doc := format.NewDocument(format.Meta{
		RunID:  runID,
		Prompt: tmpl.Name,
		Mode:   mode,
		Model:  cfg.Model,
	}, results)

	outPath := cfg.Out
	if outPath == "" {
		outPath = filepath.Join(cfg.OutDir, format.OutputName(tmpl.Name, outFormat, doc.GeneratedAt))
	}
	if err := format.WriteFile(outPath, outFormat, doc); err != nil {
		logger.Error("write results", "path", outPath, "error", err)
		return exitFailed
	}
	logger.Info("results written", "path", outPath, "format", outFormat, "rows", len(doc.Rows))

	if cfg.Report != "" {
		if err := report.Save(cfg.Report); err != nil {
			logger.Error("write report", "path", cfg.Report, "error", err)
			return exitFailed
		}
	}

	if cfg.DatabaseURL != "" {
		persistRun(sinkCtx, cfg.DatabaseURL, doc, logger)
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster := slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		if _, err := poster.PostRunSummary(sinkCtx, report); err != nil {
			logger.Warn("failed to post run summary to Slack", "error", err)
		}
	}

	fmt.Fprint(stdout, report.FormatSummary())
	fmt.Fprintf(stdout, "Results: %s\n", outPath)
	return exitOK
}

func resolvePrompt(cfg config.Config, lib *prompt.Library) (prompt.Template, error) {
	var (
		tmpl prompt.Template
		err  error
	)
	switch {
	case cfg.PromptText != "":
		tmpl = prompt.FromText(cfg.PromptText)
	case cfg.PromptFile != "":
		tmpl, err = prompt.LoadFile(cfg.PromptFile)
	default:
		tmpl, err = lib.Load(cfg.PromptName)
	}
	if err != nil {
		return prompt.Template{}, err
	}
	if err := tmpl.Validate(); err != nil {
		return prompt.Template{}, fmt.Errorf("prompt %q: %w", tmpl.Name, err)
	}
	return tmpl, nil
}

// persistRun stores the results in Postgres. The database is an optional
// sink, so failures are logged rather than failing the run.
func persistRun(ctx context.Context, databaseURL string, doc format.Document, logger *slog.Logger) {
	db, err := store.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("results not stored", "error", err)
		return
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Warn("results not stored", "error", err)
		return
	}
	id, err := db.WriteRun(ctx, doc)
	if err != nil {
		logger.Warn("results not stored", "error", err)
		return
	}
	logger.Info("results stored", "run_id", id, "rows", len(doc.Rows))
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
