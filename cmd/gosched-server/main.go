// gosched-server runs the compute scheduler headless: it loads a pipeline
// description, drives the compute/present loops on their own goroutines,
// and exposes a debug HTTP surface for introspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/me/gowe/internal/affinity"
	"github.com/me/gowe/internal/config"
	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/introspect"
	"github.com/me/gowe/internal/logging"
	"github.com/me/gowe/internal/pipeline"
	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/internal/scheduler"
	"github.com/me/gowe/pkg/model"
)

func main() {
	cfg := config.DefaultSchedulerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Debug HTTP surface listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Introspection history database path (':memory:' for testing)")
	flag.StringVar(&cfg.ConflictPolicy, "conflict-policy", cfg.ConflictPolicy, "In-place aliasing policy: warn, fatal, script")
	flag.StringVar(&cfg.ScriptPath, "conflict-script", cfg.ScriptPath, "Path to a goja conflict policy script (requires -conflict-policy=script)")
	flag.DurationVar(&cfg.ReadinessTimeout, "readiness-timeout", cfg.ReadinessTimeout, "How long the compute loop's readiness barrier spins before giving up on a frame (0 disables the bound)")
	flag.StringVar(&cfg.S3Telemetry.Bucket, "s3-bucket", cfg.S3Telemetry.Bucket, "S3 bucket for periodic telemetry snapshots (enables the S3 sink when set)")
	flag.StringVar(&cfg.S3Telemetry.Prefix, "s3-prefix", cfg.S3Telemetry.Prefix, "Key prefix for S3 telemetry snapshots")
	flag.StringVar(&cfg.S3Telemetry.Region, "s3-region", cfg.S3Telemetry.Region, "AWS region for the S3 telemetry sink")
	pipelinePath := flag.String("pipeline", "", "Path to a pipeline YAML document")
	debug := flag.Bool("debug", false, "Shorthand for -log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	pol, err := resolvePolicy(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conflict policy: %v\n", err)
		os.Exit(1)
	}

	reg := executor.NewRegistry(logger)
	reg.Register(model.DeviceCPU, executor.NewSyncGraph)
	reg.Register(model.DeviceCUDA, executor.NewAsyncGraph)
	reg.Register(model.DeviceMetal, executor.NewAsyncGraph)
	reg.Register(model.DeviceVulkan, executor.NewAsyncGraph)

	sched := scheduler.New(reg, pol, logger)
	sched.SetReadinessTimeout(cfg.ReadinessTimeout)

	if *pipelinePath != "" {
		if err := loadPipeline(*pipelinePath, sched, logger); err != nil {
			fmt.Fprintf(os.Stderr, "load pipeline: %v\n", err)
			os.Exit(1)
		}
	}

	history, err := introspect.NewHistoryStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history store: %v\n", err)
		os.Exit(1)
	}
	defer history.Close()
	if err := history.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate history store: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink *introspect.S3Sink
	if cfg.S3Telemetry.Bucket != "" {
		sink, err = introspect.NewS3Sink(ctx, cfg.S3Telemetry.Bucket, cfg.S3Telemetry.Prefix, cfg.S3Telemetry.Region, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configure s3 telemetry: %v\n", err)
			os.Exit(1)
		}
		go sink.Run(ctx, time.Minute, sched.DrawDebug)
	}

	introspectSrv := introspect.New(sched, history, logger)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: introspectSrv.Handler()}

	affinity.Configure(affinityFromConfig(cfg))

	var wg sync.WaitGroup
	wg.Add(2)
	go runComputeLoop(ctx, &wg, sched, history, logger)
	go runPresentLoop(ctx, &wg, sched, logger)

	go func() {
		logger.Info("debug server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}

	wg.Wait()
	if err := sched.Destroy(); err != nil {
		logger.Error("scheduler destroy error", "error", err)
	}
	logger.Info("server stopped")
}

func runComputeLoop(ctx context.Context, wg *sync.WaitGroup, sched *scheduler.Scheduler, history *introspect.HistoryStore, logger *slog.Logger) {
	defer wg.Done()
	var lastGraphCount int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res := sched.Compute()
		if res.IsFatal() {
			logger.Error("compute loop halted on fatal result", "result", res)
			return
		}
		if snap := sched.DrawDebug(); snap.GraphCount != lastGraphCount {
			lastGraphCount = snap.GraphCount
			if err := history.Record(ctx, time.Now(), snap); err != nil {
				logger.Warn("record rebuild history failed", "error", err)
			}
		}
	}
}

func runPresentLoop(ctx context.Context, wg *sync.WaitGroup, sched *scheduler.Scheduler, logger *slog.Logger) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if res := sched.Present(); res.IsFatal() {
			logger.Error("present loop halted on fatal result", "result", res)
			return
		}
	}
}

func resolvePolicy(cfg config.SchedulerConfig, logger *slog.Logger) (policy.ConflictPolicy, error) {
	switch cfg.ConflictPolicy {
	case "", "warn":
		return policy.WarnOnly{Logger: logger}, nil
	case "fatal":
		return policy.AlwaysFatal{Logger: logger}, nil
	case "script":
		source, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("read conflict script: %w", err)
		}
		return policy.NewScript(string(source), logger)
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", cfg.ConflictPolicy)
	}
}

func loadPipeline(path string, sched *scheduler.Scheduler, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline file: %w", err)
	}
	doc, err := pipeline.Load(data)
	if err != nil {
		return err
	}
	reg := pipeline.NewRegistry(logger)
	reg.Register("passthrough", passthroughFactory)
	return pipeline.Build(doc, reg, sched, logger)
}

// passthroughModule is the only built-in pipeline.Factory kind: it does no
// signal processing of its own, just reports ready and succeeds every
// frame. Real deployments register host-specific factories for their own
// module kinds (FFT blocks, filters, render sinks); this exists so a
// pipeline document can be smoke-tested without any of those.
type passthroughModule struct{}

func (passthroughModule) ComputeReady() model.Result                 { return model.Success }
func (passthroughModule) Compute(model.RuntimeMetadata) model.Result { return model.Success }

func passthroughFactory(map[string]any) (model.Compute, model.Present, error) {
	return passthroughModule{}, nil, nil
}

func affinityFromConfig(cfg config.SchedulerConfig) affinity.CoreSet {
	set := make(affinity.CoreSet, len(cfg.Affinity))
	for tag, cores := range cfg.Affinity {
		device, ok := model.ParseDevice(tag)
		if !ok {
			continue
		}
		set[device] = cores
	}
	return set
}
