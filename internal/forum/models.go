package forum

import (
	"strings"
	"time"
)

// Kind identifies the type of source that produced a post or comment.
type Kind string

const (
	KindReddit    Kind = "reddit"
	KindDiscourse Kind = "discourse"
)

// Valid reports whether k is a known source kind.
func (k Kind) Valid() bool {
	switch k {
	case KindReddit, KindDiscourse:
		return true
	default:
		return false
	}
}

// Post is a forum thread as observed by a source adapter and persisted by the
// store.
type Post struct {
	ID           int64
	SourceID     string
	Forum        string
	Title        string
	Author       string
	CreatedAt    time.Time
	Score        int
	CommentCount int
	URL          string
	Body         string
	Kind         Kind
	Category     Category
	FetchedAt    time.Time
	Responded    bool
	Notified     bool
}

// Age returns how long ago the post was created relative to now.
func (p Post) Age(now time.Time) time.Duration {
	if p.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(p.CreatedAt)
}

// Comment is a single reply on a post.
type Comment struct {
	ID        int64
	PostID    int64
	Author    string
	Body      string
	Score     int
	CreatedAt time.Time
	Kind      Kind
}

// Removed body markers used by sources for deleted content.
var removedMarkers = []string{"[deleted]", "[removed]", "(post deleted by author)"}

// Discourse replaces withdrawn posts with a sentence that names the delay
// before deletion, so it is matched by prefix.
var removedPrefixes = []string{"(post withdrawn by author"}

// IsRemovedBody reports whether body is empty or a removed-content marker.
func IsRemovedBody(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return true
	}
	for _, marker := range removedMarkers {
		if strings.EqualFold(trimmed, marker) {
			return true
		}
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range removedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// RequestKind classifies outbound fetches in the request log.
type RequestKind string

const (
	RequestListing  RequestKind = "listing"
	RequestDetail   RequestKind = "detail"
	RequestComments RequestKind = "comments"
	RequestClassify RequestKind = "classify"
)

// RequestLog is one append-only record of an outbound fetch attempt.
type RequestLog struct {
	ID         int64
	Timestamp  time.Time
	Kind       RequestKind
	Source     string
	URL        string
	Duration   time.Duration
	Success    bool
	StatusCode int
	Error      string
}
