package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
)

// Backend names reported by Health.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract shared by the SQLite and Postgres
// backends.
type Store interface {
	// UpsertPosts inserts unseen posts and refreshes volatile fields of known
	// ones. It returns only the inserted posts with IDs assigned. Per-row
	// failures are skipped and reported together in the returned error.
	UpsertPosts(ctx context.Context, posts []forum.Post) ([]forum.Post, error)
	// InsertComments inserts comments that are not stored yet and returns the
	// number inserted.
	InsertComments(ctx context.Context, postID int64, comments []forum.Comment) (int, error)
	MarkNotified(ctx context.Context, ids []int64) error
	UpdateCategory(ctx context.Context, id int64, category forum.Category) error
	MarkResponded(ctx context.Context, id int64) error
	// LastFetchedAt returns the most recent observation time across all
	// posts, or the zero time when nothing is stored.
	LastFetchedAt(ctx context.Context) (time.Time, error)
	// BackfillCandidates returns posts created at or after since that have
	// no stored comments.
	BackfillCandidates(ctx context.Context, since time.Time) ([]BackfillCandidate, error)
	UnnotifiedPosts(ctx context.Context, limit int) ([]forum.Post, error)
	RecentPosts(ctx context.Context, limit int) ([]forum.Post, error)
	GetPost(ctx context.Context, id int64) (*forum.Post, error)
	Comments(ctx context.Context, postID int64) ([]forum.Comment, error)
	LogRequest(ctx context.Context, entry forum.RequestLog) error
	RecentRequests(ctx context.Context, limit int) ([]forum.RequestLog, error)
	Health(ctx context.Context) Health
	Close() error
}

// BackfillCandidate pairs a stored post with its stored comment count.
type BackfillCandidate struct {
	Post           forum.Post
	StoredComments int
}

// Health reports whether the backend is reachable and its schema ready.
type Health struct {
	Backend   string
	Healthy   bool
	Detail    string
	CheckedAt time.Time
}

// Option customizes a store backend.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger routes per-row failure logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for fetched_at and request timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "store")
	return o
}

// Open selects the backend from configuration: Postgres when a DSN is set,
// SQLite in the data directory otherwise.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	if cfg.Store.PostgresDSN != "" {
		return OpenPostgres(ctx, cfg.Store.PostgresDSN, opts...)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return OpenSQLite(ctx, cfg.DatabasePath(), opts...)
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func logRowFailure(logger *slog.Logger, msg string, post forum.Post, err error) {
	logging.WarnWithContext(logger, msg, "store_row_failed",
		logging.String("source_id", post.SourceID),
		logging.String(logging.FieldSource, post.Forum),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "row skipped; next cycle re-observes it"),
		logging.String(logging.FieldImpact, "post not stored this cycle"),
	)
}
