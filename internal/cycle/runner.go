package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"threadwatch/internal/budget"
	"threadwatch/internal/config"
	"threadwatch/internal/enrich"
	"threadwatch/internal/freshness"
	"threadwatch/internal/logging"
	"threadwatch/internal/notifications"
	"threadwatch/internal/services"
	"threadwatch/internal/store"
)

// Deps are the collaborators a Runner drives.
type Deps struct {
	Store    store.Store
	Sources  []Source
	Pipeline *enrich.Pipeline
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Runner executes scrape cycles. A Runner must not run overlapping cycles;
// callers serialize Run with the cycle lock.
type Runner struct {
	store    store.Store
	sources  []Source
	pipeline *enrich.Pipeline
	notifier notifications.Service
	logger   *slog.Logger

	policy      freshness.Policy
	maxFetches  int
	minDelay    time.Duration
	budgetOpts  []budget.Option
	notifyLimit int

	now   func() time.Time
	newID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides the clock used for freshness decisions and timing.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBudgetOptions passes clock and sleeper overrides to the per-cycle
// comment budget.
func WithBudgetOptions(opts ...budget.Option) Option {
	return func(r *Runner) {
		r.budgetOpts = append(r.budgetOpts, opts...)
	}
}

// WithIDGenerator overrides cycle ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner builds a Runner from configuration and collaborators.
func NewRunner(cfg *config.Config, deps Deps, opts ...Option) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = enrich.NewPipeline(enrich.StaticClassifier{}, 0)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	r := &Runner{
		store:       deps.Store,
		sources:     deps.Sources,
		pipeline:    pipeline,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "cycle"),
		policy:      PolicyFromConfig(cfg),
		maxFetches:  cfg.Budget.MaxCommentFetches,
		minDelay:    time.Duration(cfg.Budget.MinDelayMillis) * time.Millisecond,
		notifyLimit: cfg.Notifications.MaxPerCycle,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PolicyFromConfig converts the freshness section into a Policy.
func PolicyFromConfig(cfg *config.Config) freshness.Policy {
	f := cfg.Freshness
	return freshness.Policy{
		PollInterval:     time.Duration(f.PollIntervalMinutes) * time.Minute,
		HotMinAge:        time.Duration(f.HotMinAgeMinutes) * time.Minute,
		HotMaxAge:        time.Duration(f.HotMaxAgeMinutes) * time.Minute,
		HotMinComments:   f.HotMinComments,
		BackfillLookback: time.Duration(f.BackfillLookbackHours) * time.Hour,
	}
}

// Run executes one cycle. It never returns an error; failures are recorded
// on the Summary.
func (r *Runner) Run(ctx context.Context, opts Options) (summary Summary) {
	started := r.now()
	summary = Summary{CycleID: r.newID(), StartedAt: started}
	ctx = services.WithCycleID(ctx, summary.CycleID)
	logger := logging.WithContext(ctx, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			summary.addError("cycle", fmt.Errorf("panic: %v", rec))
			logging.ErrorWithContext(logger, "cycle panicked", "cycle_panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
		}
		summary.Duration = r.now().Sub(started)
		logger.Info("cycle finished", summaryAttrs(summary)...)
	}()

	logger.Info("cycle started", logging.Bool("force", opts.Force))

	health := r.store.Health(ctx)
	summary.StoreHealthy = health.Healthy
	if !health.Healthy {
		summary.PollSkipped = true
		summary.addError("store", fmt.Errorf("%w: %s", services.ErrUnavailable, health.Detail))
		logging.WarnWithContext(logger, "store unavailable; skipping cycle", "store_unavailable",
			logging.String("backend", health.Backend),
			logging.String("detail", health.Detail),
			logging.String(logging.FieldErrorHint, services.ErrorHint(services.ErrUnavailable)),
			logging.String(logging.FieldImpact, "no posts fetched or comments backfilled this cycle"),
		)
		_ = r.notifier.Publish(ctx, notifications.EventStoreDegraded, notifications.Payload{"detail": health.Detail})
		return summary
	}

	r.phase(ctx, logger, &summary, "poll", func() error { return r.poll(ctx, logger, opts, &summary) })
	r.phase(ctx, logger, &summary, "backfill", func() error { return r.backfill(ctx, logger, &summary) })
	return summary
}

// phase runs fn and records its error or panic without aborting the cycle.
func (r *Runner) phase(ctx context.Context, logger *slog.Logger, summary *Summary, name string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			summary.addError(name, fmt.Errorf("panic: %v", rec))
			logging.ErrorWithContext(logger, "cycle phase panicked", "phase_panic",
				logging.String("phase", name),
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	if err := fn(); err != nil {
		summary.addError(name, err)
		logging.WarnWithContext(logger, "cycle phase failed", "phase_failed",
			logging.String("phase", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
	}
	if ctx.Err() != nil {
		logger.Info("cycle interrupted", logging.String("phase", name))
	}
}

func summaryAttrs(s Summary) []any {
	return logging.Args(
		logging.Duration("duration", s.Duration),
		logging.Bool("poll_skipped", s.PollSkipped),
		logging.Bool("store_healthy", s.StoreHealthy),
		logging.Int("sources_polled", s.SourcesPolled),
		logging.Int("source_errors", s.SourceErrors),
		logging.Int("candidates", s.CandidatesFetched),
		logging.Int("new_posts", s.NewPostsFound),
		logging.Int("categorized", s.Categorized),
		logging.Int("notified", s.Notified),
		logging.Int("hot", s.HotPostsFound),
		logging.Int("stale", s.StalePostsFound),
		logging.Int("comment_fetches", s.CommentFetches),
		logging.Int("comments", s.CommentsProcessed),
		logging.Bool("budget_exhausted", s.BudgetExhausted),
		logging.Int("errors", len(s.Errors)),
	)
}
