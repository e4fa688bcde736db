package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/forum"
)

const userAgent = "threadwatch/1.0"

// Event names a notification type.
type Event string

const (
	EventNewPost       Event = "new_post"
	EventStoreDegraded Event = "store_degraded"
	EventTest          Event = "test"
)

// Payload carries event fields.
type Payload map[string]string

// Service defines the notification surface exposed to the cycle.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Enabled() bool
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// PostPayload describes a discovered post.
func PostPayload(post forum.Post) Payload {
	return Payload{
		"title":    post.Title,
		"forum":    post.Forum,
		"kind":     string(post.Kind),
		"author":   post.Author,
		"category": post.Category.Label(),
		"url":      post.URL,
	}
}

// TestNotification sends a low-priority probe message.
func TestNotification(ctx context.Context, svc Service) error {
	return svc.Publish(ctx, EventTest, nil)
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

func buildMessage(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventNewPost:
		forumLabel := get("forum")
		if kind := get("kind"); kind == "reddit" && forumLabel != "" {
			forumLabel = "r/" + forumLabel
		}
		var body strings.Builder
		body.WriteString(get("title"))
		if author := get("author"); author != "" {
			fmt.Fprintf(&body, "\nby %s", author)
		}
		if forumLabel != "" {
			fmt.Fprintf(&body, " in %s", forumLabel)
		}
		if u := get("url"); u != "" {
			fmt.Fprintf(&body, "\n%s", u)
		}
		title := "threadwatch - New Post"
		if category := get("category"); category != "" {
			title = fmt.Sprintf("threadwatch - %s", category)
		}
		tags := []string{"threadwatch"}
		if kind := get("kind"); kind != "" {
			tags = append(tags, kind)
		}
		return message{title: title, body: body.String(), tags: tags, click: get("url")}, true
	case EventStoreDegraded:
		detail := get("detail")
		if detail == "" {
			detail = "unknown"
		}
		return message{
			title:    "threadwatch - Store Unavailable",
			body:     fmt.Sprintf("Cycle skipped: %s", detail),
			tags:     []string{"threadwatch", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "threadwatch - Test",
			body:     "Notification system test",
			tags:     []string{"threadwatch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Enabled() bool { return true }

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := buildMessage(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) Enabled() bool                                 { return false }
