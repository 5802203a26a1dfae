package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/robofuse/fanout/internal/config"
	"github.com/robofuse/fanout/internal/console"
	"github.com/robofuse/fanout/internal/logger"
	"github.com/robofuse/fanout/pkg/command"
	"github.com/robofuse/fanout/pkg/control"
	"github.com/robofuse/fanout/pkg/discover"
	"github.com/robofuse/fanout/pkg/engine"
	"github.com/robofuse/fanout/pkg/media"
	"github.com/robofuse/fanout/pkg/progress"
	"github.com/robofuse/fanout/pkg/queue"
	"github.com/robofuse/fanout/pkg/report"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	controlsHint  = "Press + to add a worker or - to remove one."
	labelWidth    = 48
	logPaintEvery = 5 * time.Second
)

type runFlags struct {
	workers  int
	exec     string
	exts     []string
	watch    bool
	attempts int
	noTUI    bool
	retry    bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Process every matching file under dir",
		Long: `Walks dir for files with the configured extensions and runs the command
template on each one. Placeholders: {} path, {dir} parent directory,
{base} file name, {name} file name without extension, {stem} path without
extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, root, flags)
			if err != nil {
				return err
			}
			return runFanout(cmd, cfg, args[0], flags)
		},
	}

	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Initial number of workers")
	cmd.Flags().StringVarP(&flags.exec, "exec", "e", "", "Command template run for each file")
	cmd.Flags().StringSliceVar(&flags.exts, "ext", nil, "File extensions to process (comma separated)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "Keep watching dir for new files until it goes idle")
	cmd.Flags().IntVar(&flags.attempts, "attempts", 0, "Attempts per file before it counts as failed")
	cmd.Flags().BoolVar(&flags.noTUI, "no-tui", false, "Log progress instead of repainting the terminal")
	cmd.Flags().BoolVar(&flags.retry, "retry-failed", false, "Only process files recorded as failed by earlier runs")

	return cmd
}

// loadRunConfig layers changed flags over the config file.
func loadRunConfig(cmd *cobra.Command, root *rootOptions, flags *runFlags) (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("workers") {
		cfg.Workers = flags.workers
	}
	if cmd.Flags().Changed("exec") {
		cfg.Command = flags.exec
	}
	if cmd.Flags().Changed("ext") {
		cfg.Extensions = flags.exts
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch = flags.watch
	}
	if cmd.Flags().Changed("attempts") {
		cfg.Attempts = flags.attempts
	}
	if root.logLevel != "" {
		cfg.LogLevel = root.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Command == "" {
		return nil, errors.New("no command: pass --exec or set command in the config file")
	}

	config.SetInstance(cfg)
	return cfg, nil
}

func runFanout(cmd *cobra.Command, cfg *config.Config, root string, flags *runFlags) error {
	logger.SetLogPath(cfg.LogDir)
	logger.SetLogLevel(cfg.LogLevel)
	defer logger.Close()

	runID := uuid.NewString()
	log := logger.Default().With().Str("run", runID).Logger()

	if cfg.Lock {
		lock := flock.New(cfg.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another fanout run holds %s", cfg.LockPath())
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := command.New(cfg.Command,
		command.WithAttempts(cfg.Attempts),
		command.WithRetryDelay(cfg.RetryDelay()),
		command.WithLogger(logger.New("command").With().Str("run", runID).Logger()),
	)
	if err != nil {
		return err
	}

	log.Info().
		Str("root", root).
		Int("workers", cfg.Workers).
		Strs("extensions", cfg.Extensions).
		Bool("watch", cfg.Watch).
		Str("command", cfg.Command).
		Msg("Starting run")

	var surface console.Surface
	controls := control.Multi{control.Signals{}}
	if logger.IsTTY() && !flags.noTUI {
		fmt.Fprintln(cmd.OutOrStdout(), controlsHint)
		surface = console.NewTerminal(os.Stdout)
		if logger.IsStdinTTY() {
			// Raw mode swallows SIGINT, so the keyboard reports Ctrl-C itself.
			controls = append(controls, control.Keyboard{In: os.Stdin, OnInterrupt: stop})
		}
		logger.SetConsoleMuted(true)
	} else if logger.IsInfoEnabled() {
		surface = console.NewLogSurface(logger.New("progress"), logPaintEvery)
	}

	failures := report.Open(cfg.ReportFile(), logger.New("report"))
	labeler := media.NewLabeler(labelWidth)
	discoverLog := logger.New("discover")

	produce := func(ctx context.Context, q *queue.Queue[string]) error {
		found, err := discover.Run(ctx, discover.Options{
			Root:       root,
			Extensions: cfg.Extensions,
			Watch:      cfg.Watch,
			Idle:       cfg.WatchIdle(),
			Logger:     discoverLog,
		}, q.Enqueue)
		discoverLog.Debug().Int("found", found).Msg("Discovery finished")
		return err
	}
	if flags.retry {
		produce = func(ctx context.Context, q *queue.Queue[string]) error {
			return enqueueFailures(ctx, q, failures, root, discoverLog)
		}
	}

	process := func(ctx context.Context, path string, sink *progress.Sink) error {
		err := runner.Process(ctx, path, sink)
		labeler.Forget(path)
		switch {
		case err == nil:
			failures.Remove(path)
		case ctx.Err() == nil:
			failures.Add(path, err)
		}
		return err
	}

	result, err := engine.Run(ctx, engine.Options[string]{
		Queue:         queue.New[string](),
		Produce:       produce,
		Process:       process,
		Workers:       cfg.Workers,
		Surface:       surface,
		Status:        progressStatus(runner),
		Label:         labeler.Label,
		UpdatesPerSec: cfg.UpdatesPerSec,
		Controls:      controls,
		Grace:         cfg.Grace(),
		Logger:        logger.New("engine"),
	})
	logger.SetConsoleMuted(false)

	if saveErr := failures.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("Failed to save failure report")
	}

	if result != nil {
		status := "summary | status=ok"
		switch {
		case errors.Is(err, context.Canceled):
			status = "summary | status=interrupted"
		case err != nil || result.Failed > 0:
			status = "summary | status=failed"
		}
		log.Info().Msg(FormatSummary(result, SummaryOptions{
			Status:    status,
			Succeeded: runner.Succeeded(),
			Bytes:     runner.Bytes(),
		}))
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("Run interrupted, pending files were not processed")
		}
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d files failed, see %s (rerun with --retry-failed)", result.Failed, result.Processed, failures.File())
	}
	return nil
}

// enqueueFailures feeds the recorded failures under root that still exist.
func enqueueFailures(ctx context.Context, q *queue.Queue[string], failures *report.Failures, root string, log zerolog.Logger) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}

	queued := 0
	for _, path := range failures.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(absRoot, abs); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Info().Str("path", path).Msg("Dropping failure for missing file")
			failures.Remove(path)
			continue
		}
		if err := q.Enqueue(path); err != nil {
			return fmt.Errorf("enqueue %s: %w", path, err)
		}
		queued++
	}

	log.Info().Int("queued", queued).Msg("Retrying failed files")
	return nil
}
