package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadwatch/internal/forum"
)

//go:embed postgres_schema.sql
var postgresSchemaSQL string

// Postgres is the server-backed Store using a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	opts options

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to the database described by dsn. The pool connects
// lazily: when the server is unreachable the store is still returned and
// Health reports the outage until a later check succeeds.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &Postgres{pool: pool, opts: buildOptions(opts)}
	if err := s.ensureSchema(ctx); err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			pool.Close()
			return nil, err
		}
		s.opts.logger.Warn("postgres schema deferred", "error", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Health pings the server and retries schema creation if it was deferred.
func (s *Postgres) Health(ctx context.Context) Health {
	h := Health{Backend: BackendPostgres, CheckedAt: s.opts.now()}
	if err := s.pool.Ping(ctx); err != nil {
		h.Detail = err.Error()
		return h
	}
	if err := s.ensureSchema(ctx); err != nil {
		h.Detail = err.Error()
		return h
	}
	h.Healthy = true
	cfg := s.pool.Config().ConnConfig
	h.Detail = fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return h
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.pool.Exec(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version int
	err := s.pool.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	s.schemaReady = true
	return nil
}

// UpsertPosts inserts unseen posts and refreshes volatile fields of known ones.
func (s *Postgres) UpsertPosts(ctx context.Context, posts []forum.Post) ([]forum.Post, error) {
	fetchedAt := s.opts.now().UTC()
	var (
		inserted []forum.Post
		failures []error
	)
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		stored, isNew, err := s.upsertPost(ctx, post, fetchedAt)
		if err != nil {
			logRowFailure(s.opts.logger, "post upsert failed", post, err)
			failures = append(failures, fmt.Errorf("upsert %s: %w", post.SourceID, err))
			continue
		}
		if isNew {
			inserted = append(inserted, stored)
		}
	}
	return inserted, errors.Join(failures...)
}

func (s *Postgres) upsertPost(ctx context.Context, post forum.Post, fetchedAt time.Time) (forum.Post, bool, error) {
	if strings.TrimSpace(post.SourceID) == "" {
		return post, false, errors.New("source id required")
	}
	createdAt := post.CreatedAt
	if createdAt.IsZero() {
		createdAt = fetchedAt
	}
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO posts (
		source_id, kind, forum, title, author, url, body, score, comment_count,
		category, created_at, fetched_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (source_id) DO NOTHING
	RETURNING id`,
		post.SourceID, string(post.Kind), post.Forum, post.Title, post.Author, post.URL, post.Body,
		post.Score, post.CommentCount, string(post.Category), createdAt.UTC(), fetchedAt,
	).Scan(&id)
	switch {
	case err == nil:
		post.ID = id
		post.CreatedAt = createdAt.UTC()
		post.FetchedAt = fetchedAt
		post.Notified = false
		post.Responded = false
		return post, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return post, false, fmt.Errorf("insert post: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `UPDATE posts SET
		score = $1,
		comment_count = $2,
		body = CASE WHEN $3::text <> '' THEN $3::text ELSE body END,
		fetched_at = $4
	WHERE source_id = $5`,
		post.Score, post.CommentCount, post.Body, fetchedAt, post.SourceID,
	); err != nil {
		return post, false, fmt.Errorf("refresh post: %w", err)
	}
	return post, false, nil
}

// InsertComments stores comments that are not present yet.
func (s *Postgres) InsertComments(ctx context.Context, postID int64, comments []forum.Comment) (int, error) {
	inserted := 0
	var failures []error
	for _, comment := range comments {
		tag, err := s.pool.Exec(ctx, `INSERT INTO comments (post_id, kind, author, body, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (post_id, author, created_at) DO NOTHING`,
			postID, string(comment.Kind), comment.Author, comment.Body, comment.Score, comment.CreatedAt.UTC(),
		)
		if err != nil {
			failures = append(failures, fmt.Errorf("insert comment by %s: %w", comment.Author, err))
			continue
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, errors.Join(failures...)
}

// MarkNotified flags posts as delivered to the notifier.
func (s *Postgres) MarkNotified(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, "UPDATE posts SET notified = TRUE WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// UpdateCategory records the classifier label for a post.
func (s *Postgres) UpdateCategory(ctx context.Context, id int64, category forum.Category) error {
	tag, err := s.pool.Exec(ctx, "UPDATE posts SET category = $1 WHERE id = $2", string(category), id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update category for post %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkResponded records that an operator replied to a post.
func (s *Postgres) MarkResponded(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "UPDATE posts SET responded = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark responded for post %d: %w", id, ErrNotFound)
	}
	return nil
}

// LastFetchedAt returns the most recent fetched_at across all posts.
func (s *Postgres) LastFetchedAt(ctx context.Context) (time.Time, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx, "SELECT MAX(fetched_at) FROM posts").Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last fetched: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return last.UTC(), nil
}

// BackfillCandidates returns uncommented posts created at or after since.
func (s *Postgres) BackfillCandidates(ctx context.Context, since time.Time) ([]BackfillCandidate, error) {
	posts, err := s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts p WHERE created_at >= $1 AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.post_id = p.id) ORDER BY created_at DESC",
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("backfill candidates: %w", err)
	}
	out := make([]BackfillCandidate, 0, len(posts))
	for _, post := range posts {
		out = append(out, BackfillCandidate{Post: post})
	}
	return out, nil
}

// UnnotifiedPosts returns posts the notifier has not seen, oldest first.
func (s *Postgres) UnnotifiedPosts(ctx context.Context, limit int) ([]forum.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts WHERE NOT notified ORDER BY created_at ASC, id ASC LIMIT $1",
		clampLimit(limit, 50))
}

// RecentPosts returns the newest posts first.
func (s *Postgres) RecentPosts(ctx context.Context, limit int) ([]forum.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC, id DESC LIMIT $1",
		clampLimit(limit, 20))
}

// GetPost fetches a post by row id.
func (s *Postgres) GetPost(ctx context.Context, id int64) (*forum.Post, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+postColumns+" FROM posts WHERE id = $1", id)
	post, err := scanPostgresPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Comments returns stored comments for a post, oldest first.
func (s *Postgres) Comments(ctx context.Context, postID int64) ([]forum.Comment, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, post_id, kind, author, body, score, created_at FROM comments WHERE post_id = $1 ORDER BY created_at ASC, id ASC",
		postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []forum.Comment
	for rows.Next() {
		var (
			c    forum.Comment
			kind string
		)
		if err := rows.Scan(&c.ID, &c.PostID, &kind, &c.Author, &c.Body, &c.Score, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Kind = forum.Kind(kind)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// LogRequest appends one outbound fetch record.
func (s *Postgres) LogRequest(ctx context.Context, entry forum.RequestLog) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.opts.now()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO request_log (ts, kind, source, url, duration_ms, success, status_code, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ts.UTC(), string(entry.Kind), entry.Source, entry.URL, entry.Duration.Milliseconds(),
		entry.Success, entry.StatusCode, truncate(entry.Error, maxErrorLength),
	)
	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	return nil
}

// RecentRequests returns the newest request log entries first.
func (s *Postgres) RecentRequests(ctx context.Context, limit int) ([]forum.RequestLog, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, ts, kind, source, url, duration_ms, success, status_code, error FROM request_log ORDER BY id DESC LIMIT $1",
		clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []forum.RequestLog
	for rows.Next() {
		var (
			entry      forum.RequestLog
			kind       string
			durationMS int64
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &kind, &entry.Source, &entry.URL, &durationMS, &entry.Success, &entry.StatusCode, &entry.Error); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entry.Kind = forum.RequestKind(kind)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Postgres) queryPosts(ctx context.Context, query string, args ...any) ([]forum.Post, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []forum.Post
	for rows.Next() {
		post, err := scanPostgresPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	return out, rows.Err()
}

func scanPostgresPost(row pgx.Row) (forum.Post, error) {
	var (
		post     forum.Post
		kind     string
		category string
	)
	err := row.Scan(
		&post.ID,
		&post.SourceID,
		&kind,
		&post.Forum,
		&post.Title,
		&post.Author,
		&post.URL,
		&post.Body,
		&post.Score,
		&post.CommentCount,
		&category,
		&post.CreatedAt,
		&post.FetchedAt,
		&post.Responded,
		&post.Notified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return post, err
		}
		return post, fmt.Errorf("scan post: %w", err)
	}
	post.Kind = forum.Kind(kind)
	post.Category = forum.Category(category)
	post.CreatedAt = post.CreatedAt.UTC()
	post.FetchedAt = post.FetchedAt.UTC()
	return post, nil
}
