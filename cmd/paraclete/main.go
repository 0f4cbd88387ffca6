// Paraclete entry point.
//
// Usage:
//
//	paraclete run --thread t1 --task "..."      # run a workflow to completion or suspension
//	paraclete status --thread t1                # inspect an instance
//	paraclete decide --thread t1 --request id --grant
//	paraclete cancel --thread t1 --reason "..."
//	paraclete checkpoints --thread t1           # list the checkpoint chain
//	paraclete version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/samuelarogbonlo/paraclete/checkpoint"
	"github.com/samuelarogbonlo/paraclete/config"
	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/internal/metrics"
	"github.com/samuelarogbonlo/paraclete/internal/telemetry"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
	"github.com/samuelarogbonlo/paraclete/workers"
)

// Build-time injected.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runWorkflow(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "decide":
		runDecide(os.Args[2:])
	case "cancel":
		runCancel(os.Args[2:])
	case "checkpoints":
		runCheckpoints(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// app bundles everything a command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers
	store  checkpoint.Store
	engine *engine.Engine
}

func (a *app) close(ctx context.Context) {
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// setup loads config and assembles the engine stack.
func setup(configPath string) (*app, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := initLogger(cfg.Log)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	collector := metrics.NewCollector("paraclete", prometheus.NewRegistry(), logger)
	res := resolver.New(logger)

	eng, err := engine.New(store, workers.All(res, logger), engine.Options{
		RetryLimit:        cfg.Engine.RetryLimit,
		BranchTimeout:     cfg.Engine.BranchTimeout,
		BranchConcurrency: cfg.Engine.BranchConcurrency,
		BranchesPerSecond: cfg.Engine.BranchesPerSecond,
		MaxTransitions:    cfg.Engine.MaxTransitions,
	}, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
		store:  store,
		engine: eng,
	}, nil
}

func runWorkflow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread ID for the new instance")
	sessionID := fs.String("session", "cli", "Session ID")
	userID := fs.String("user", "cli", "User ID")
	task := fs.String("task", "", "Task text to run")
	fs.Parse(args)

	if *threadID == "" || *task == "" {
		fmt.Fprintln(os.Stderr, "run requires --thread and --task")
		os.Exit(1)
	}

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close(context.Background())

	err = a.engine.Submit(ctx, *threadID, *sessionID, *userID,
		[]types.Message{types.NewUserMessage(*task)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	printStatus(ctx, a, *threadID)
	printTranscript(ctx, a, *threadID)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread ID")
	fs.Parse(args)

	if *threadID == "" {
		fmt.Fprintln(os.Stderr, "status requires --thread")
		os.Exit(1)
	}

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer a.close(ctx)

	printStatus(ctx, a, *threadID)
}

func runDecide(args []string) {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread ID")
	requestID := fs.String("request", "", "Approval request ID")
	grant := fs.Bool("grant", false, "Grant the request")
	reject := fs.Bool("reject", false, "Reject the request")
	by := fs.String("by", "cli", "Decider identity")
	feedback := fs.String("feedback", "", "Optional feedback for the workflow")
	fs.Parse(args)

	if *threadID == "" || *requestID == "" || *grant == *reject {
		fmt.Fprintln(os.Stderr, "decide requires --thread, --request, and exactly one of --grant/--reject")
		os.Exit(1)
	}

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close(context.Background())

	if err := a.engine.Decide(ctx, *threadID, *requestID, *grant, *by, *feedback); err != nil {
		fmt.Fprintf(os.Stderr, "decide failed: %v\n", err)
		os.Exit(1)
	}

	printStatus(ctx, a, *threadID)
}

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread ID")
	reason := fs.String("reason", "", "Cancellation reason")
	fs.Parse(args)

	if *threadID == "" {
		fmt.Fprintln(os.Stderr, "cancel requires --thread")
		os.Exit(1)
	}

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer a.close(ctx)

	if err := a.engine.Cancel(ctx, *threadID, *reason); err != nil {
		fmt.Fprintf(os.Stderr, "cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("thread %s cancelled\n", *threadID)
}

func runCheckpoints(args []string) {
	fs := flag.NewFlagSet("checkpoints", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread ID")
	limit := fs.Int("limit", 0, "Max entries (0 = all)")
	fs.Parse(args)

	if *threadID == "" {
		fmt.Fprintln(os.Stderr, "checkpoints requires --thread")
		os.Exit(1)
	}

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer a.close(ctx)

	metas, err := a.store.List(ctx, *threadID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list checkpoints failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-6s %-24s %s\n", "ID", "TIMESTAMP", "NEXT NODE")
	for _, m := range metas {
		fmt.Printf("%-6d %-24s %s\n", m.ID, m.Timestamp.Format(time.RFC3339), m.NextNode)
	}
}

func printStatus(ctx context.Context, a *app, threadID string) {
	st, err := a.engine.Status(ctx, threadID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("thread:        %s\n", st.ThreadID)
	fmt.Printf("checkpoint:    %d\n", st.CheckpointID)
	switch {
	case st.Terminal:
		fmt.Println("state:         terminal")
	case st.Suspended:
		fmt.Println("state:         suspended (awaiting approval)")
		fmt.Printf("request:       %s\n", st.PendingApprovalID)
	default:
		fmt.Printf("state:         running at %s\n", st.ActiveWorker)
	}
	fmt.Printf("retries:       %d/%d\n", st.RetryCount, st.RetryLimit)
	if len(st.Errors) > 0 {
		fmt.Printf("errors:        %d\n", len(st.Errors))
		for _, e := range st.Errors {
			fmt.Printf("  - [%s] %s\n", e.Worker, e.Message)
		}
	}
}

func printTranscript(ctx context.Context, a *app, threadID string) {
	cp, err := a.store.Latest(ctx, threadID)
	if err != nil {
		return
	}
	fmt.Println("\ntranscript:")
	for _, m := range cp.State.Messages {
		fmt.Printf("  [%s] %s\n", m.Role, m.Content)
	}
}

func printVersion() {
	fmt.Printf("paraclete %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Paraclete - multi-agent workflow orchestration

Usage:
  paraclete <command> [options]

Commands:
  run          Submit a task and run it to completion or suspension
  status       Show an instance's state
  decide       Grant or reject a pending approval request
  cancel       Terminate an instance
  checkpoints  List an instance's checkpoint chain
  version      Show version information
  help         Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)
  --thread <id>     Workflow thread ID

Examples:
  paraclete run --thread t1 --task "Create a function that parses CSV"
  paraclete status --thread t1
  paraclete decide --thread t1 --request <id> --grant
  paraclete checkpoints --thread t1 --limit 10`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
