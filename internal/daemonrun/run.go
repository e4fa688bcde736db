package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"threadwatch/internal/config"
	"threadwatch/internal/cycle"
	"threadwatch/internal/daemon"
	"threadwatch/internal/enrich"
	"threadwatch/internal/logging"
	"threadwatch/internal/notifications"
	"threadwatch/internal/store"
)

// Options configures process runtime behavior.
type Options struct {
	LogLevel string
	// LogToStderr sends console logs to stderr so stdout stays free for
	// machine-readable output.
	LogToStderr bool
	// Force polls sources on the first cycle even when the poll interval has
	// not elapsed.
	Force bool
}

// Runtime holds the collaborators needed to run cycles.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Notifier notifications.Service
	Runner   *cycle.Runner
}

// NewLogger builds the process logger, writing to the console stream and to
// the log file in the configured log directory.
func NewLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	stream := "stdout"
	if opts.LogToStderr {
		stream = "stderr"
	}
	outputs := []string{stream}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}

// Open builds a Runtime: store, sources, categorizer, notifier and runner.
// The store doubles as the request recorder for sources and the classifier.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, runnerOpts ...cycle.Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(ctx, cfg, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	srcs, err := cycle.BuildSources(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	pipeline := enrich.NewFromConfig(cfg, st, enrich.WithLogger(logger))
	runner := cycle.NewRunner(cfg, cycle.Deps{
		Store:    st,
		Sources:  srcs,
		Pipeline: pipeline,
		Notifier: notifier,
		Logger:   logger,
	}, runnerOpts...)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Notifier: notifier,
		Runner:   runner,
	}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// RunOnce runs a single cycle while holding the cycle lock. It returns
// daemon.ErrLocked when another process is mid-cycle.
func (r *Runtime) RunOnce(ctx context.Context, opts cycle.Options) (cycle.Summary, error) {
	lock := daemon.NewLock(r.Config.LockPath())
	if err := lock.Acquire(); err != nil {
		return cycle.Summary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.Logger.Warn("failed to release cycle lock", logging.Error(err))
		}
	}()
	return r.Runner.Run(ctx, opts), nil
}

// Run repeats cycles on the configured interval until SIGINT or SIGTERM. The
// cycle lock is held for the lifetime of the loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := NewLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := daemon.NewLock(cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release cycle lock", logging.Error(err))
		}
	}()

	rt, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	logger.Info("threadwatch loop started",
		logging.String(logging.FieldEventType, "loop_started"),
		logging.Duration("interval", cfg.CycleInterval()),
		logging.Int("sources", len(cfg.EnabledSources())),
		logging.Bool("notifications_enabled", rt.Notifier.Enabled()),
		logging.String("lock", lock.Path()),
	)

	force := opts.Force
	daemon.Loop(signalCtx, cfg.CycleInterval(), func(ctx context.Context) {
		rt.Runner.Run(ctx, cycle.Options{Force: force})
		force = false
	})

	logger.Info("threadwatch loop shutting down")
	return nil
}
