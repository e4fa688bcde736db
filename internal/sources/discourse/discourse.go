// Package discourse adapts the Discourse topic JSON API. Listings come from
// the latest or category feed; the opening post body and the reply stream
// come from per-topic detail calls that are paced by a fixed delay.
package discourse

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"threadwatch/internal/budget"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
	"threadwatch/internal/sources"
)

const (
	defaultLimit       = 25
	defaultDetailLimit = 10
	defaultDetailDelay = time.Second

	replyBatchSize  = 20
	maxReplyBatches = 10
)

// Config describes one Discourse forum.
type Config struct {
	Name    string
	BaseURL string
	// Category is an optional category slug; empty selects /latest.json.
	Category    string
	Limit       int
	DetailLimit int
	DetailDelay time.Duration
}

// Adapter fetches topics and replies from one Discourse instance.
type Adapter struct {
	cfg    Config
	host   string
	fetch  *sources.Fetcher
	pacing []budget.Option
	logger *slog.Logger
}

var (
	_ sources.Adapter = (*Adapter)(nil)
	_ sources.Owner   = (*Adapter)(nil)
)

// Option customizes the adapter.
type Option func(*Adapter)

// WithPacing passes clock and sleeper overrides to the detail pacer.
func WithPacing(opts ...budget.Option) Option {
	return func(a *Adapter) {
		a.pacing = append(a.pacing, opts...)
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New constructs a Discourse adapter. BaseURL must be an absolute URL.
func New(cfg Config, fetch *sources.Fetcher, opts ...Option) (*Adapter, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "discourse", "new adapter", fmt.Sprintf("invalid base url %q", cfg.BaseURL), err)
	}
	cfg.Category = strings.Trim(strings.TrimSpace(cfg.Category), "/")
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.DetailLimit < 0 {
		cfg.DetailLimit = 0
	} else if cfg.DetailLimit == 0 {
		cfg.DetailLimit = defaultDetailLimit
	}
	if cfg.DetailDelay < 0 {
		cfg.DetailDelay = defaultDetailDelay
	}
	if cfg.Name == "" {
		cfg.Name = "discourse:" + parsed.Host
		if cfg.Category != "" {
			cfg.Name += "/" + cfg.Category
		}
	}
	a := &Adapter{cfg: cfg, host: parsed.Host, fetch: fetch, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.String(logging.FieldSource, cfg.Name))
	return a, nil
}

// Name returns the configured source name.
func (a *Adapter) Name() string { return a.cfg.Name }

// Kind reports forum.KindDiscourse.
func (a *Adapter) Kind() forum.Kind { return forum.KindDiscourse }

// Owns reports whether post is a topic on this forum's host.
func (a *Adapter) Owns(post forum.Post) bool {
	return post.Kind == forum.KindDiscourse && strings.HasPrefix(post.SourceID, "discourse:"+a.host+":")
}

func (a *Adapter) forumKey() string {
	if a.cfg.Category != "" {
		return a.cfg.Category
	}
	return a.host
}

// FetchNewPosts reads the topic listing, then enriches the first
// DetailLimit topics with their opening post. A failed detail call keeps the
// listing excerpt as the body.
func (a *Adapter) FetchNewPosts(ctx context.Context) ([]forum.Post, error) {
	endpoint := a.cfg.BaseURL + "/latest.json"
	if a.cfg.Category != "" {
		endpoint = fmt.Sprintf("%s/c/%s.json", a.cfg.BaseURL, a.cfg.Category)
	}
	var page latestResponse
	if err := a.fetch.GetJSON(ctx, forum.RequestListing, endpoint, &page); err != nil {
		return nil, err
	}

	usernames := make(map[int64]string, len(page.Users))
	for _, u := range page.Users {
		usernames[u.ID] = u.Username
	}

	topics := page.TopicList.Topics
	if len(topics) > a.cfg.Limit {
		topics = topics[:a.cfg.Limit]
	}

	pacer := budget.NewPacer(a.cfg.DetailDelay, a.pacing...)
	posts := make([]forum.Post, 0, len(topics))
	details := 0
	for _, topic := range topics {
		if topic.Pinned || strings.TrimSpace(topic.Title) == "" {
			continue
		}
		post := a.topicPost(topic, usernames)
		if details < a.cfg.DetailLimit {
			details++
			if err := pacer.Wait(ctx); err != nil {
				return posts, err
			}
			detail, err := a.topic(ctx, forum.RequestDetail, topic.ID)
			if err != nil {
				a.logger.Debug("topic detail failed; using excerpt",
					logging.Int64("topic_id", topic.ID),
					logging.Error(err),
				)
			} else {
				a.applyDetail(&post, detail)
			}
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// FetchComments returns the topic's replies without the opening post. The
// topic call carries the first chunk of posts; the rest of the stream is
// requested in paced batches of replyBatchSize, up to maxReplyBatches calls.
func (a *Adapter) FetchComments(ctx context.Context, post forum.Post) ([]forum.Comment, error) {
	topicID, err := TopicID(post.SourceID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, a.cfg.Name, "fetch comments", "", err)
	}
	pacer := budget.NewPacer(a.cfg.DetailDelay, a.pacing...)
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	detail, err := a.topic(ctx, forum.RequestComments, topicID)
	if err != nil {
		return nil, err
	}

	loaded := make(map[int64]struct{}, len(detail.PostStream.Posts))
	posts := append([]topicPost(nil), detail.PostStream.Posts...)
	for _, p := range posts {
		loaded[p.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range detail.PostStream.Stream {
		if _, ok := loaded[id]; !ok {
			missing = append(missing, id)
			loaded[id] = struct{}{}
		}
	}

	for batches := 0; len(missing) > 0; batches++ {
		if batches == maxReplyBatches {
			a.logger.Debug("reply stream truncated",
				logging.Int64("topic_id", topicID),
				logging.Int("unfetched", len(missing)),
			)
			break
		}
		n := min(replyBatchSize, len(missing))
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := a.postsByID(ctx, topicID, missing[:n])
		if err != nil {
			return nil, err
		}
		posts = append(posts, batch...)
		missing = missing[n:]
	}

	sort.SliceStable(posts, func(i, j int) bool { return posts[i].PostNumber < posts[j].PostNumber })
	comments := make([]forum.Comment, 0, len(posts))
	for _, p := range posts {
		if !p.isReply() {
			continue
		}
		comments = append(comments, forum.Comment{
			PostID:    post.ID,
			Author:    p.Username,
			Body:      sources.PlainText(p.Cooked),
			Score:     int(p.Score),
			CreatedAt: parseTime(p.CreatedAt),
			Kind:      forum.KindDiscourse,
		})
	}
	return sources.FilterComments(comments), nil
}

func (a *Adapter) topic(ctx context.Context, kind forum.RequestKind, id int64) (topicResponse, error) {
	var detail topicResponse
	endpoint := fmt.Sprintf("%s/t/%d.json", a.cfg.BaseURL, id)
	err := a.fetch.GetJSON(ctx, kind, endpoint, &detail)
	return detail, err
}

func (a *Adapter) postsByID(ctx context.Context, topicID int64, ids []int64) ([]topicPost, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add("post_ids[]", strconv.FormatInt(id, 10))
	}
	endpoint := fmt.Sprintf("%s/t/%d/posts.json?%s", a.cfg.BaseURL, topicID, query.Encode())
	var page postsResponse
	if err := a.fetch.GetJSON(ctx, forum.RequestComments, endpoint, &page); err != nil {
		return nil, err
	}
	return page.PostStream.Posts, nil
}

func (a *Adapter) topicPost(topic topicSummary, usernames map[int64]string) forum.Post {
	commentCount := topic.PostsCount - 1
	if commentCount < 0 {
		commentCount = topic.ReplyCount
	}
	slug := topic.Slug
	if slug == "" {
		slug = "topic"
	}
	return forum.Post{
		SourceID:     SourceID(a.host, topic.ID),
		Forum:        a.forumKey(),
		Title:        strings.TrimSpace(topic.Title),
		Author:       topic.author(usernames),
		CreatedAt:    parseTime(topic.CreatedAt),
		Score:        topic.LikeCount,
		CommentCount: commentCount,
		URL:          fmt.Sprintf("%s/t/%s/%d", a.cfg.BaseURL, slug, topic.ID),
		Body:         sources.PlainText(topic.Excerpt),
		Kind:         forum.KindDiscourse,
	}
}

func (a *Adapter) applyDetail(post *forum.Post, detail topicResponse) {
	for _, p := range detail.PostStream.Posts {
		if p.PostNumber != 1 {
			continue
		}
		if body := sources.PlainText(p.Cooked); body != "" {
			post.Body = body
		}
		if post.Author == "" {
			post.Author = p.Username
		}
		break
	}
	if detail.PostsCount > 0 {
		post.CommentCount = detail.PostsCount - 1
	}
}

// SourceID builds the globally unique id of a topic on host.
func SourceID(host string, topicID int64) string {
	return fmt.Sprintf("discourse:%s:%d", host, topicID)
}

// TopicID extracts the numeric topic id from a SourceID.
func TopicID(sourceID string) (int64, error) {
	idx := strings.LastIndex(sourceID, ":")
	if !strings.HasPrefix(sourceID, "discourse:") || idx < 0 {
		return 0, fmt.Errorf("not a discourse source id: %q", sourceID)
	}
	id, err := strconv.ParseInt(sourceID[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse topic id from %q: %w", sourceID, err)
	}
	return id, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
