package enrich

import (
	"context"
	"log/slog"
	"time"

	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services/llm"
	"threadwatch/internal/sources"
)

// Classifier labels a single post.
type Classifier interface {
	Classify(ctx context.Context, post forum.Post) (forum.Category, error)
}

// StaticClassifier returns the same category for every post.
type StaticClassifier struct {
	Category forum.Category
}

// Classify returns the configured category, or the fallback when unset.
func (s StaticClassifier) Classify(context.Context, forum.Post) (forum.Category, error) {
	if s.Category == forum.CategoryNone {
		return forum.CategoryFallback, nil
	}
	return s.Category, nil
}

// LLMClassifier categorizes posts with a chat completion model and records
// each call in the request log.
type LLMClassifier struct {
	client   *llm.Client
	recorder sources.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// ClassifierOption customizes an LLMClassifier.
type ClassifierOption func(*LLMClassifier)

// WithClassifierLogger sets the logger used for request log failures.
func WithClassifierLogger(logger *slog.Logger) ClassifierOption {
	return func(c *LLMClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewLLMClassifier wraps client. A nil recorder discards request entries.
func NewLLMClassifier(client *llm.Client, recorder sources.Recorder, opts ...ClassifierOption) *LLMClassifier {
	if recorder == nil {
		recorder = sources.NopRecorder
	}
	c := &LLMClassifier{client: client, recorder: recorder, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends the post title, body, and kind to the model.
func (c *LLMClassifier) Classify(ctx context.Context, post forum.Post) (forum.Category, error) {
	started := c.now()
	result, err := c.client.Categorize(ctx, llm.Request{
		Title: post.Title,
		Body:  post.Body,
		Kind:  string(post.Kind),
		Forum: post.Forum,
	})
	entry := forum.RequestLog{
		Timestamp: started,
		Kind:      forum.RequestClassify,
		Source:    post.SourceID,
		URL:       c.client.Endpoint(),
		Duration:  c.now().Sub(started),
		Success:   err == nil,
	}
	if err != nil {
		entry.StatusCode = llm.StatusCode(err)
		entry.Error = err.Error()
	} else {
		entry.StatusCode = 200
	}
	if recErr := c.recorder.LogRequest(ctx, entry); recErr != nil {
		c.logger.Debug("request log write failed",
			logging.String(logging.FieldSource, post.SourceID),
			logging.Error(recErr),
		)
	}
	if err != nil {
		return forum.CategoryNone, err
	}
	return forum.ParseCategory(result.Category), nil
}
