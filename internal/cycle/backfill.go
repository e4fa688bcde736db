package cycle

import (
	"context"
	"fmt"
	"log/slog"

	"threadwatch/internal/budget"
	"threadwatch/internal/forum"
	"threadwatch/internal/freshness"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
	"threadwatch/internal/sources"
)

// backfill fetches comments for hot posts first, then stale posts, until the
// budget runs out.
func (r *Runner) backfill(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	now := r.now()
	stored, err := r.store.BackfillCandidates(ctx, r.policy.BackfillSince(now))
	if err != nil {
		return fmt.Errorf("list backfill candidates: %w", err)
	}

	posts := make(map[int64]forum.Post, len(stored))
	candidates := make([]freshness.Candidate, 0, len(stored))
	for _, c := range stored {
		posts[c.Post.ID] = c.Post
		candidates = append(candidates, freshness.Candidate{
			PostID:         c.Post.ID,
			CreatedAt:      c.Post.CreatedAt,
			CommentCount:   c.Post.CommentCount,
			StoredComments: c.StoredComments,
		})
	}
	hot, stale := r.policy.Queues(now, candidates)
	summary.HotPostsFound = len(hot)
	summary.StalePostsFound = len(stale)
	if len(hot)+len(stale) == 0 {
		return nil
	}

	b := budget.New(r.maxFetches, r.minDelay, r.budgetOpts...)
	queue := append(append(make([]freshness.Candidate, 0, len(hot)+len(stale)), hot...), stale...)
	for i, c := range queue {
		post := posts[c.PostID]
		adapter := r.adapterFor(post)
		if adapter == nil {
			logger.Debug("no adapter for post; skipping backfill",
				logging.Int64(logging.FieldPostID, post.ID),
				logging.String("kind", string(post.Kind)),
				logging.String("forum", post.Forum),
				logging.Duration("age", post.Age(now)),
			)
			continue
		}

		ok, err := b.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			summary.BudgetExhausted = true
			logger.Info("comment budget exhausted",
				logging.Int("budget", r.maxFetches),
				logging.Int("used", b.Used()),
				logging.Int("remaining_candidates", len(queue)-i),
			)
			return nil
		}
		summary.CommentFetches++

		postCtx := services.WithPostID(services.WithSource(ctx, adapter.Name()), post.ID)
		comments, err := adapter.FetchComments(postCtx, post)
		if err != nil {
			summary.addError("comments", err)
			logging.WarnWithContext(logging.WithContext(postCtx, logger), "comment fetch failed", "comment_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
				logging.Bool("transient", services.IsTransient(err)),
				logging.String(logging.FieldImpact, "post stays in the backfill queue"),
			)
			continue
		}
		inserted, err := r.store.InsertComments(ctx, post.ID, comments)
		summary.CommentsProcessed += inserted
		if err != nil {
			summary.addError("comments", err)
		}
	}
	logger.Debug("backfill drained",
		logging.Int("used", b.Used()),
		logging.Bool("budget_spent", b.Exhausted()),
	)
	return nil
}

// adapterFor picks the source that produced post. Adapters that cannot
// report ownership serve as a fallback for posts of their kind.
func (r *Runner) adapterFor(post forum.Post) sources.Adapter {
	var fallback sources.Adapter
	for _, src := range r.sources {
		if src.Adapter.Kind() != post.Kind {
			continue
		}
		if owner, ok := src.Adapter.(sources.Owner); ok {
			if owner.Owns(post) {
				return src.Adapter
			}
			continue
		}
		if fallback == nil {
			fallback = src.Adapter
		}
	}
	return fallback
}
