package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"threadwatch/internal/forum"
)

const postColumns = "id, source_id, kind, forum, title, author, url, body, score, comment_count, category, created_at, fetched_at, responded, notified"

// UpsertPosts inserts unseen posts and refreshes score, comment count, body
// (when non-empty), and fetched_at of known posts.
func (s *SQLite) UpsertPosts(ctx context.Context, posts []forum.Post) ([]forum.Post, error) {
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

func (s *SQLite) upsertPost(ctx context.Context, post forum.Post, fetchedAt time.Time) (forum.Post, bool, error) {
	if strings.TrimSpace(post.SourceID) == "" {
		return post, false, errors.New("source id required")
	}
	createdAt := post.CreatedAt
	if createdAt.IsZero() {
		createdAt = fetchedAt
	}
	res, err := s.execWithRetry(ctx, `INSERT INTO posts (
		source_id, kind, forum, title, author, url, body, score, comment_count,
		category, created_at, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_id) DO NOTHING`,
		post.SourceID,
		string(post.Kind),
		post.Forum,
		post.Title,
		nullableString(post.Author),
		nullableString(post.URL),
		nullableString(post.Body),
		post.Score,
		post.CommentCount,
		string(post.Category),
		formatTime(createdAt),
		formatTime(fetchedAt),
	)
	if err != nil {
		return post, false, fmt.Errorf("insert post: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return post, false, fmt.Errorf("read post id: %w", err)
		}
		post.ID = id
		post.CreatedAt = createdAt.UTC()
		post.FetchedAt = fetchedAt
		post.Notified = false
		post.Responded = false
		return post, true, nil
	}

	if _, err := s.execWithRetry(ctx, `UPDATE posts SET
		score = ?,
		comment_count = ?,
		body = CASE WHEN ? <> '' THEN ? ELSE body END,
		fetched_at = ?
	WHERE source_id = ?`,
		post.Score,
		post.CommentCount,
		post.Body, post.Body,
		formatTime(fetchedAt),
		post.SourceID,
	); err != nil {
		return post, false, fmt.Errorf("refresh post: %w", err)
	}
	return post, false, nil
}

// InsertComments stores comments that are not present yet.
func (s *SQLite) InsertComments(ctx context.Context, postID int64, comments []forum.Comment) (int, error) {
	inserted := 0
	var failures []error
	for _, comment := range comments {
		res, err := s.execWithRetry(ctx, `INSERT INTO comments (post_id, kind, author, body, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id, author, created_at) DO NOTHING`,
			postID,
			string(comment.Kind),
			comment.Author,
			comment.Body,
			comment.Score,
			formatTime(comment.CreatedAt.UTC()),
		)
		if err != nil {
			failures = append(failures, fmt.Errorf("insert comment by %s: %w", comment.Author, err))
			continue
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			inserted++
		}
	}
	return inserted, errors.Join(failures...)
}

// MarkNotified flags posts as delivered to the notifier.
func (s *SQLite) MarkNotified(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := "UPDATE posts SET notified = 1 WHERE id IN (" + makePlaceholders(len(ids)) + ")"
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// UpdateCategory records the classifier label for a post.
func (s *SQLite) UpdateCategory(ctx context.Context, id int64, category forum.Category) error {
	res, err := s.execWithRetry(ctx, "UPDATE posts SET category = ? WHERE id = ?", string(category), id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update category for post %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkResponded records that an operator replied to a post.
func (s *SQLite) MarkResponded(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, "UPDATE posts SET responded = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("mark responded for post %d: %w", id, ErrNotFound)
	}
	return nil
}

// LastFetchedAt returns the most recent fetched_at across all posts.
func (s *SQLite) LastFetchedAt(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(fetched_at) FROM posts").Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("last fetched: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseTimeString(raw.String)
}

// BackfillCandidates returns uncommented posts created at or after since.
func (s *SQLite) BackfillCandidates(ctx context.Context, since time.Time) ([]BackfillCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postColumns+" FROM posts p WHERE created_at >= ? AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.post_id = p.id) ORDER BY created_at DESC",
		formatTime(since.UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("backfill candidates: %w", err)
	}
	defer rows.Close()

	var out []BackfillCandidate
	for rows.Next() {
		post, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, BackfillCandidate{Post: *post})
	}
	return out, rows.Err()
}

// UnnotifiedPosts returns posts the notifier has not seen, oldest first.
func (s *SQLite) UnnotifiedPosts(ctx context.Context, limit int) ([]forum.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts WHERE notified = 0 ORDER BY created_at ASC, id ASC LIMIT ?",
		clampLimit(limit, 50))
}

// RecentPosts returns the newest posts first.
func (s *SQLite) RecentPosts(ctx context.Context, limit int) ([]forum.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC, id DESC LIMIT ?",
		clampLimit(limit, 20))
}

// GetPost fetches a post by row id.
func (s *SQLite) GetPost(ctx context.Context, id int64) (*forum.Post, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id)
	post, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return post, err
}

// Comments returns stored comments for a post, oldest first.
func (s *SQLite) Comments(ctx context.Context, postID int64) ([]forum.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, post_id, kind, author, body, score, created_at FROM comments WHERE post_id = ? ORDER BY created_at ASC, id ASC",
		postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []forum.Comment
	for rows.Next() {
		var (
			c          forum.Comment
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&c.ID, &c.PostID, &kind, &c.Author, &c.Body, &c.Score, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Kind = forum.Kind(kind)
		if created, err := parseTimeString(createdRaw); err == nil {
			c.CreatedAt = created
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) queryPosts(ctx context.Context, query string, args ...any) ([]forum.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []forum.Post
	for rows.Next() {
		post, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *post)
	}
	return out, rows.Err()
}

func scanSQLitePost(scanner interface{ Scan(dest ...any) error }) (*forum.Post, error) {
	var (
		post       forum.Post
		kind       string
		author     sql.NullString
		url        sql.NullString
		body       sql.NullString
		category   string
		createdRaw string
		fetchedRaw string
		responded  int
		notified   int
	)
	if err := scanner.Scan(
		&post.ID,
		&post.SourceID,
		&kind,
		&post.Forum,
		&post.Title,
		&author,
		&url,
		&body,
		&post.Score,
		&post.CommentCount,
		&category,
		&createdRaw,
		&fetchedRaw,
		&responded,
		&notified,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	post.Kind = forum.Kind(kind)
	post.Author = author.String
	post.URL = url.String
	post.Body = body.String
	post.Category = forum.Category(category)
	post.Responded = responded != 0
	post.Notified = notified != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		post.CreatedAt = created
	}
	if fetched, err := parseTimeString(fetchedRaw); err == nil {
		post.FetchedAt = fetched
	}
	return &post, nil
}
