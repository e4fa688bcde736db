package sources

import (
	"context"

	"threadwatch/internal/forum"
)

// Adapter fetches posts and comments from one configured forum.
type Adapter interface {
	Name() string
	Kind() forum.Kind
	// FetchNewPosts returns the newest page of posts as canonical candidates.
	FetchNewPosts(ctx context.Context) ([]forum.Post, error)
	// FetchComments returns the visible comments of a stored post.
	FetchComments(ctx context.Context, post forum.Post) ([]forum.Comment, error)
}

// Owner is implemented by adapters that can tell which stored posts they
// produced. The cycle uses it to route comment fetches.
type Owner interface {
	Owns(post forum.Post) bool
}

// Recorder receives one entry per outbound request attempt.
type Recorder interface {
	LogRequest(ctx context.Context, entry forum.RequestLog) error
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(ctx context.Context, entry forum.RequestLog) error

// LogRequest calls f.
func (f RecorderFunc) LogRequest(ctx context.Context, entry forum.RequestLog) error {
	return f(ctx, entry)
}

// NopRecorder discards every entry.
var NopRecorder Recorder = RecorderFunc(func(context.Context, forum.RequestLog) error { return nil })

// FilterComments drops comments with an absent or removed body.
func FilterComments(comments []forum.Comment) []forum.Comment {
	out := comments[:0]
	for _, c := range comments {
		if forum.IsRemovedBody(c.Body) {
			continue
		}
		out = append(out, c)
	}
	return out
}
