// gosched-cli is a small operator-facing front end for the compute
// scheduler: validate a pipeline document offline, run it in the
// foreground, or run it under CPU profiling.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/pprof/profile"
	"github.com/spf13/cobra"

	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/logging"
	"github.com/me/gowe/internal/pipeline"
	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/internal/scheduler"
	"github.com/me/gowe/pkg/model"
)

const version = "0.1.0"

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:     "gosched-cli",
		Short:   "Operate the compute scheduler from the command line",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCmd(), newRunCmd(), newProfileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logger() *slog.Logger {
	return logging.NewLogger(logging.ParseLevel(logLevel), "text")
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline document for wiring and device errors without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pipeline file: %w", err)
			}
			doc, err := pipeline.Load(data)
			if err != nil {
				return err
			}

			reg := pipeline.NewRegistry(logger())
			reg.Register("passthrough", demoFactory)

			errs := pipeline.Validate(doc, reg)
			if len(errs) == 0 {
				fmt.Printf("%s: valid (%d modules)\n", args[0], len(doc.Modules))
				return nil
			}
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e)
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		},
	}
}

func newRunCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Build and run a pipeline in the foreground until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runPipeline(ctx, args[0], logger())
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 = run until interrupted)")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var duration time.Duration
	var outPath string
	cmd := &cobra.Command{
		Use:   "profile <pipeline.yaml>",
		Short: "Run a pipeline under CPU profiling and print a summary of where time went",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return profilePipeline(args[0], duration, outPath, logger())
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to profile")
	cmd.Flags().StringVar(&outPath, "out", "gosched.pprof", "Where to write the raw CPU profile")
	return cmd
}

func runPipeline(ctx context.Context, path string, log *slog.Logger) error {
	sched, err := buildScheduler(path, log)
	if err != nil {
		return err
	}
	defer sched.Destroy()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if res := sched.Compute(); res.IsFatal() {
				log.Error("compute halted", "result", res)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if res := sched.Present(); res.IsFatal() {
				log.Error("present halted", "result", res)
				return
			}
		}
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func buildScheduler(pipelinePath string, log *slog.Logger) (*scheduler.Scheduler, error) {
	reg := executor.NewRegistry(log)
	reg.Register(model.DeviceCPU, executor.NewSyncGraph)
	reg.Register(model.DeviceCUDA, executor.NewAsyncGraph)
	reg.Register(model.DeviceMetal, executor.NewAsyncGraph)
	reg.Register(model.DeviceVulkan, executor.NewAsyncGraph)

	sched := scheduler.New(reg, policy.WarnOnly{Logger: log}, log)

	data, err := os.ReadFile(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	doc, err := pipeline.Load(data)
	if err != nil {
		return nil, err
	}

	pipeReg := pipeline.NewRegistry(log)
	pipeReg.Register("passthrough", demoFactory)
	if err := pipeline.Build(doc, pipeReg, sched, log); err != nil {
		return nil, err
	}
	return sched, nil
}

// profilePipeline runs a pipeline under runtime/pprof's CPU profiler for
// duration, writes the raw profile to outPath, then reopens it with
// google/pprof/profile to print which functions accounted for the most
// samples — the same profile.Parse/Sample walk the pprof tool itself uses,
// inlined here so a CI job can get a one-line summary without shelling out.
func profilePipeline(pipelinePath string, duration time.Duration, outPath string, log *slog.Logger) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create profile output: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	runErr := runPipeline(ctx, pipelinePath, log)
	pprof.StopCPUProfile()
	f.Close()
	if runErr != nil {
		return runErr
	}

	raw, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("reopen profile: %w", err)
	}
	defer raw.Close()

	prof, err := profile.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}

	type funcSample struct {
		name    string
		samples int64
	}
	totals := make(map[string]int64)
	for _, sample := range prof.Sample {
		if len(sample.Location) == 0 || len(sample.Value) == 0 {
			continue
		}
		for _, line := range sample.Location[0].Line {
			totals[line.Function.Name] += sample.Value[0]
		}
	}
	var ranked []funcSample
	for name, n := range totals {
		ranked = append(ranked, funcSample{name, n})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].samples > ranked[j].samples })

	fmt.Printf("wrote %s (%d samples)\n", outPath, len(prof.Sample))
	limit := 10
	if len(ranked) < limit {
		limit = len(ranked)
	}
	for _, fs := range ranked[:limit] {
		fmt.Printf("%8d  %s\n", fs.samples, fs.name)
	}
	return nil
}

type demoModule struct{}

func (demoModule) ComputeReady() model.Result                 { return model.Success }
func (demoModule) Compute(model.RuntimeMetadata) model.Result { return model.Success }

func demoFactory(map[string]any) (model.Compute, model.Present, error) {
	return demoModule{}, nil, nil
}
