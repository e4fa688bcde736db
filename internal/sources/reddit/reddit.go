// Package reddit adapts the public subreddit JSON listing API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"threadwatch/internal/budget"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
	"threadwatch/internal/sources"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultLimit     = 25
	maxLimit         = 100
	defaultMoreDelay = time.Second
	// morechildren accepts at most 100 ids per call.
	moreBatchSize = 100
	maxMoreCalls  = 5
)

// Config describes one subreddit.
type Config struct {
	Name      string
	BaseURL   string
	Subreddit string
	Limit     int
	// MoreDelay spaces the calls that expand collapsed comments. Negative
	// selects the default.
	MoreDelay time.Duration
}

// Adapter fetches posts and comment trees from one subreddit.
type Adapter struct {
	cfg    Config
	fetch  *sources.Fetcher
	logger *slog.Logger
	pacing []budget.Option
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithPacing passes clock and sleeper overrides to the expansion pacer.
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

var (
	_ sources.Adapter = (*Adapter)(nil)
	_ sources.Owner   = (*Adapter)(nil)
)

// New constructs a subreddit adapter.
func New(cfg Config, fetch *sources.Fetcher, opts ...Option) *Adapter {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Subreddit = strings.TrimPrefix(strings.TrimSpace(cfg.Subreddit), "r/")
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Limit > maxLimit {
		cfg.Limit = maxLimit
	}
	if cfg.MoreDelay < 0 {
		cfg.MoreDelay = defaultMoreDelay
	}
	if cfg.Name == "" {
		cfg.Name = "reddit:" + cfg.Subreddit
	}
	a := &Adapter{cfg: cfg, fetch: fetch, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the configured source name.
func (a *Adapter) Name() string { return a.cfg.Name }

// Kind reports forum.KindReddit.
func (a *Adapter) Kind() forum.Kind { return forum.KindReddit }

// Owns reports whether post came from this subreddit.
func (a *Adapter) Owns(post forum.Post) bool {
	return post.Kind == forum.KindReddit && strings.EqualFold(post.Forum, a.cfg.Subreddit)
}

// FetchNewPosts requests the newest page of the subreddit.
func (a *Adapter) FetchNewPosts(ctx context.Context) ([]forum.Post, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", a.cfg.BaseURL, url.PathEscape(a.cfg.Subreddit), a.cfg.Limit)
	var page listing
	if err := a.fetch.GetJSON(ctx, forum.RequestListing, endpoint, &page); err != nil {
		return nil, err
	}

	posts := make([]forum.Post, 0, len(page.Data.Children))
	for _, child := range page.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var link linkData
		if err := json.Unmarshal(child.Data, &link); err != nil {
			continue
		}
		if post, ok := a.toPost(link); ok {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// FetchComments walks the reply tree of the post's thread, keeping only
// comment nodes. Collapsed branches are expanded through morechildren until
// maxMoreCalls is reached; anything left after that is dropped.
func (a *Adapter) FetchComments(ctx context.Context, post forum.Post) ([]forum.Comment, error) {
	threadURL := strings.TrimRight(post.URL, "/")
	if threadURL == "" {
		return nil, services.Wrap(services.ErrValidation, a.cfg.Name, "fetch comments", "post has no permalink", nil)
	}
	endpoint := fmt.Sprintf("%s.json?limit=%d&raw_json=1", threadURL, maxLimit)

	pacer := budget.NewPacer(a.cfg.MoreDelay, a.pacing...)
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	var pages []listing
	if err := a.fetch.GetJSON(ctx, forum.RequestComments, endpoint, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}

	var (
		comments []forum.Comment
		more     []string
	)
	walkComments(pages[1].Data.Children, post.ID, &comments, &more)
	if len(more) == 0 {
		return sources.FilterComments(comments), nil
	}

	linkID := threadLinkID(pages[0], post)
	if linkID == "" {
		a.logger.Debug("collapsed comments skipped", logging.String("reason", "unknown link id"), logging.Int("unfetched", len(more)))
		return sources.FilterComments(comments), nil
	}
	for calls := 0; len(more) > 0; calls++ {
		if calls == maxMoreCalls {
			a.logger.Debug("comment tree truncated",
				logging.String("link_id", linkID),
				logging.Int("unfetched", len(more)),
			)
			break
		}
		n := min(moreBatchSize, len(more))
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		things, err := a.moreChildren(ctx, linkID, more[:n])
		if err != nil {
			return nil, err
		}
		more = more[n:]
		walkComments(things, post.ID, &comments, &more)
	}
	return sources.FilterComments(comments), nil
}

func (a *Adapter) moreChildren(ctx context.Context, linkID string, ids []string) ([]thing, error) {
	query := url.Values{}
	query.Set("api_type", "json")
	query.Set("link_id", linkID)
	query.Set("children", strings.Join(ids, ","))
	query.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/api/morechildren.json?%s", a.cfg.BaseURL, query.Encode())
	var resp moreResponse
	if err := a.fetch.GetJSON(ctx, forum.RequestComments, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.JSON.Data.Things, nil
}

// threadLinkID returns the t3 fullname of the thread, preferring the link
// listing over the stored source id.
func threadLinkID(head listing, post forum.Post) string {
	for _, child := range head.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var link linkData
		if err := json.Unmarshal(child.Data, &link); err == nil {
			if link.Name != "" {
				return link.Name
			}
			if link.ID != "" {
				return "t3_" + link.ID
			}
		}
	}
	if id, ok := strings.CutPrefix(post.SourceID, "reddit:"); ok && strings.HasPrefix(id, "t3_") {
		return id
	}
	return ""
}

func (a *Adapter) toPost(link linkData) (forum.Post, bool) {
	fullname := link.Name
	if fullname == "" && link.ID != "" {
		fullname = "t3_" + link.ID
	}
	if fullname == "" || strings.TrimSpace(link.Title) == "" {
		return forum.Post{}, false
	}
	subreddit := link.Subreddit
	if subreddit == "" {
		subreddit = a.cfg.Subreddit
	}
	permalink := link.Permalink
	if permalink == "" {
		permalink = fmt.Sprintf("/r/%s/comments/%s/", subreddit, strings.TrimPrefix(fullname, "t3_"))
	}
	body := htmlOrRaw(link.SelftextHTML, link.Selftext)
	if forum.IsRemovedBody(body) {
		body = ""
	}
	return forum.Post{
		SourceID:     "reddit:" + fullname,
		Forum:        subreddit,
		Title:        strings.TrimSpace(link.Title),
		Author:       link.Author,
		CreatedAt:    unixTime(link.CreatedUTC),
		Score:        link.Score,
		CommentCount: link.NumComments,
		URL:          a.cfg.BaseURL + permalink,
		Body:         body,
		Kind:         forum.KindReddit,
	}, true
}

// walkComments flattens children into out and queues the ids of collapsed
// branches in more. A more node with no ids is a "continue this thread" link
// and is skipped.
func walkComments(children []thing, postID int64, out *[]forum.Comment, more *[]string) {
	for _, child := range children {
		switch child.Kind {
		case "t1":
		case "more":
			var m moreData
			if err := json.Unmarshal(child.Data, &m); err == nil {
				*more = append(*more, m.Children...)
			}
			continue
		default:
			continue
		}
		var c commentData
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		*out = append(*out, forum.Comment{
			PostID:    postID,
			Author:    c.Author,
			Body:      htmlOrRaw(c.BodyHTML, c.Body),
			Score:     c.Score,
			CreatedAt: unixTime(c.CreatedUTC),
			Kind:      forum.KindReddit,
		})
		if replies, ok := c.replyListing(); ok {
			walkComments(replies.Data.Children, postID, out, more)
		}
	}
}

// htmlOrRaw prefers the rendered html field and falls back to the markdown
// source when the html is absent.
func htmlOrRaw(html, raw string) string {
	if text := sources.PlainText(html); text != "" {
		return text
	}
	return sources.PlainText(raw)
}

func unixTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type linkData struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Subreddit    string  `json:"subreddit"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	Permalink    string  `json:"permalink"`
	Score        int     `json:"score"`
	NumComments  int     `json:"num_comments"`
	CreatedUTC   float64 `json:"created_utc"`
}

type commentData struct {
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	BodyHTML   string          `json:"body_html"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

// replyListing decodes the replies field, which the API sends as an empty
// string when a comment has no children.
func (c commentData) replyListing() (listing, bool) {
	raw := strings.TrimSpace(string(c.Replies))
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return listing{}, false
	}
	var l listing
	if err := json.Unmarshal(c.Replies, &l); err != nil {
		return listing{}, false
	}
	return l, true
}

type moreData struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type moreResponse struct {
	JSON struct {
		Data struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}
