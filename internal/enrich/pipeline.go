package enrich

import (
	"context"
	"log/slog"
	"time"

	"threadwatch/internal/budget"
	"threadwatch/internal/config"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
	"threadwatch/internal/services/llm"
	"threadwatch/internal/sources"
)

// Pipeline runs posts through a Classifier sequentially.
type Pipeline struct {
	classifier Classifier
	cooldown   time.Duration
	pacing     []budget.Option
	logger     *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPacing passes clock and sleeper overrides to the cooldown pacer.
func WithPacing(opts ...budget.Option) Option {
	return func(p *Pipeline) {
		p.pacing = append(p.pacing, opts...)
	}
}

// NewPipeline builds a pipeline around classifier with cooldown between
// classifier calls.
func NewPipeline(classifier Classifier, cooldown time.Duration, opts ...Option) *Pipeline {
	if classifier == nil {
		classifier = StaticClassifier{}
	}
	p := &Pipeline{classifier: classifier, cooldown: cooldown, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "enrich")
	return p
}

// NewFromConfig selects the LLM classifier when enrichment is enabled and an
// API key is configured, and the static fallback classifier otherwise.
func NewFromConfig(cfg *config.Config, recorder sources.Recorder, opts ...Option) *Pipeline {
	cooldown := time.Duration(cfg.Enrichment.CooldownMillis) * time.Millisecond
	p := NewPipeline(StaticClassifier{}, cooldown, opts...)
	if cfg.Enrichment.Enabled && cfg.LLM.APIKey != "" {
		p.classifier = NewLLMClassifier(NewLLMClient(cfg), recorder, WithClassifierLogger(p.logger))
	}
	return p
}

// NewLLMClient builds the categorizer client from the llm section. Requests
// are sent once: a failed post takes the fallback category and every attempt
// must show up in the request log, so retries are left to the next cycle.
// Callers may still pass WithRetryMaxAttempts to override.
func NewLLMClient(cfg *config.Config, opts ...llm.Option) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, append([]llm.Option{llm.WithRetryMaxAttempts(1)}, opts...)...)
}

// Result summarizes a Categorize pass.
type Result struct {
	Posts      []forum.Post
	Classified int
	Bypassed   int
	Failed     int
}

// Categorize labels each post and returns copies with Category set. Posts
// with a category already assigned skip the classifier. Every returned post
// carries a non-empty category.
func (p *Pipeline) Categorize(ctx context.Context, posts []forum.Post) []forum.Post {
	return p.Run(ctx, posts).Posts
}

// Run is Categorize with per-outcome counts.
func (p *Pipeline) Run(ctx context.Context, posts []forum.Post) Result {
	res := Result{Posts: make([]forum.Post, 0, len(posts))}
	pacer := budget.NewPacer(p.cooldown, p.pacing...)
	for _, post := range posts {
		if post.Category != forum.CategoryNone {
			res.Bypassed++
			res.Posts = append(res.Posts, post)
			continue
		}
		post.Category = p.classify(ctx, pacer, post, &res)
		res.Posts = append(res.Posts, post)
	}
	return res
}

func (p *Pipeline) classify(ctx context.Context, pacer *budget.Pacer, post forum.Post, res *Result) forum.Category {
	if err := pacer.Wait(ctx); err != nil {
		res.Failed++
		return forum.CategoryFallback
	}
	category, err := p.classifier.Classify(ctx, post)
	if err != nil || category == forum.CategoryNone {
		res.Failed++
		attrs := []logging.Attr{
			logging.Int64(logging.FieldPostID, post.ID),
			logging.String(logging.FieldSource, post.Forum),
			logging.String("fallback", string(forum.CategoryFallback)),
			logging.String(logging.FieldImpact, "post labeled with fallback category"),
		}
		if err != nil {
			attrs = append(attrs, logging.Error(err), logging.String(logging.FieldErrorHint, services.ErrorHint(err)))
		}
		logging.WarnWithContext(p.logger, "categorization failed", "categorize_failed", attrs...)
		return forum.CategoryFallback
	}
	res.Classified++
	p.logger.Debug("post categorized",
		logging.Int64(logging.FieldPostID, post.ID),
		logging.String("category", string(category)),
	)
	return category
}
