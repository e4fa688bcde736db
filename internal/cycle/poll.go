package cycle

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/notifications"
	"threadwatch/internal/services"
)

type fetchResult struct {
	posts []forum.Post
	err   error
}

// poll fetches listings when due, stores new posts, categorizes them, and
// notifies everything not yet delivered.
func (r *Runner) poll(ctx context.Context, logger *slog.Logger, opts Options, summary *Summary) error {
	now := r.now()
	last, err := r.store.LastFetchedAt(ctx)
	if err != nil {
		summary.PollSkipped = true
		return fmt.Errorf("read last fetch: %w", err)
	}
	if !opts.Force && !r.policy.PollDue(now, last) {
		summary.PollSkipped = true
		logger.Debug("poll not due", logging.String("last_fetch", last.Format("15:04:05")))
		return nil
	}

	candidates := r.fetchAll(ctx, logger, summary)
	summary.CandidatesFetched = len(candidates)

	inserted, err := r.store.UpsertPosts(ctx, candidates)
	summary.NewPostsFound = len(inserted)
	if err != nil {
		summary.addError("store", err)
	}

	if len(inserted) > 0 {
		r.categorize(ctx, logger, inserted, summary)
	}

	return r.notify(ctx, logger, summary)
}

// categorize labels posts and persists each category. It returns the posts
// whose category was stored.
func (r *Runner) categorize(ctx context.Context, logger *slog.Logger, posts []forum.Post, summary *Summary) []forum.Post {
	result := r.pipeline.Run(ctx, posts)
	stored := make([]forum.Post, 0, len(result.Posts))
	for _, post := range result.Posts {
		if err := r.store.UpdateCategory(ctx, post.ID, post.Category); err != nil {
			summary.addError("categorize", err)
			logging.WarnWithContext(logger, "category update failed", "category_update_failed",
				logging.Int64(logging.FieldPostID, post.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "post retried on next poll"),
			)
			continue
		}
		summary.Categorized++
		stored = append(stored, post)
	}
	return stored
}

// fetchAll polls every source concurrently. A failing source contributes no
// posts; the rest are merged in source order once all have finished.
func (r *Runner) fetchAll(ctx context.Context, logger *slog.Logger, summary *Summary) []forum.Post {
	results := make([]fetchResult, len(r.sources))
	var g errgroup.Group
	for i, src := range r.sources {
		g.Go(func() error {
			results[i] = r.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var merged []forum.Post
	for i, res := range results {
		name := r.sources[i].Adapter.Name()
		summary.SourcesPolled++
		if res.err != nil {
			summary.SourceErrors++
			summary.addError(name, res.err)
			logging.WarnWithContext(logger, "source fetch failed", "source_fetch_failed",
				logging.String(logging.FieldSource, name),
				logging.Error(res.err),
				logging.String(logging.FieldErrorHint, services.ErrorHint(res.err)),
				logging.Bool("transient", services.IsTransient(res.err)),
				logging.String(logging.FieldImpact, "source skipped until next poll"),
			)
			continue
		}
		logger.Debug("source fetched",
			logging.String(logging.FieldSource, name),
			logging.Int("posts", len(res.posts)),
		)
		merged = append(merged, res.posts...)
	}
	return merged
}

func (r *Runner) fetchSource(ctx context.Context, src Source) (res fetchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = fetchResult{err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	ctx = services.WithSource(ctx, src.Adapter.Name())
	posts, err := src.Adapter.FetchNewPosts(ctx)
	if err != nil {
		return fetchResult{err: err}
	}
	if src.Category != forum.CategoryNone {
		for i := range posts {
			posts[i].Category = src.Category
		}
	}
	return fetchResult{posts: posts}
}

// notify delivers pending posts, oldest first. Posts left unnotified by an
// interrupted cycle are picked up here as well.
func (r *Runner) notify(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	pending, err := r.store.UnnotifiedPosts(ctx, r.notifyLimit)
	if err != nil {
		return fmt.Errorf("list unnotified: %w", err)
	}
	pending = r.recoverCategories(ctx, logger, pending, summary)

	delivered := make([]int64, 0, len(pending))
	for _, post := range pending {
		if err := r.notifier.Publish(ctx, notifications.EventNewPost, notifications.PostPayload(post)); err != nil {
			summary.addError("notify", err)
			logging.WarnWithContext(logger, "notification failed", "notify_failed",
				logging.Int64(logging.FieldPostID, post.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "post retried on next poll"),
			)
			continue
		}
		delivered = append(delivered, post.ID)
	}
	if err := r.store.MarkNotified(ctx, delivered); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	summary.Notified = len(delivered)
	return nil
}

// recoverCategories categorizes pending posts that an interrupted cycle left
// without a category. Posts whose category cannot be stored are dropped from
// this round of notifications.
func (r *Runner) recoverCategories(ctx context.Context, logger *slog.Logger, pending []forum.Post, summary *Summary) []forum.Post {
	var missing []forum.Post
	ready := make([]forum.Post, 0, len(pending))
	for _, post := range pending {
		if post.Category == forum.CategoryNone {
			missing = append(missing, post)
			continue
		}
		ready = append(ready, post)
	}
	if len(missing) == 0 {
		return ready
	}
	logger.Info("categorizing posts left by an earlier cycle", logging.Int("posts", len(missing)))
	return append(ready, r.categorize(ctx, logger, missing, summary)...)
}
