package cycle

import "time"

// Options controls a single Run.
type Options struct {
	// Force polls sources even when the poll interval has not elapsed.
	Force bool
}

// Summary reports what one cycle did.
type Summary struct {
	CycleID           string        `json:"cycle_id"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration_ns"`
	PollSkipped       bool          `json:"poll_skipped"`
	StoreHealthy      bool          `json:"store_healthy"`
	SourcesPolled     int           `json:"sources_polled"`
	SourceErrors      int           `json:"source_errors"`
	CandidatesFetched int           `json:"candidates_fetched"`
	NewPostsFound     int           `json:"new_posts_found"`
	Categorized       int           `json:"categorized"`
	Notified          int           `json:"notified"`
	HotPostsFound     int           `json:"hot_posts_found"`
	StalePostsFound   int           `json:"stale_posts_found"`
	CommentFetches    int           `json:"comment_fetches"`
	CommentsProcessed int           `json:"comments_processed"`
	BudgetExhausted   bool          `json:"budget_exhausted"`
	Errors            []string      `json:"errors,omitempty"`
}

// Degraded reports whether the cycle skipped work because the store was
// unavailable.
func (s Summary) Degraded() bool {
	return !s.StoreHealthy
}

func (s *Summary) addError(phase string, err error) {
	if err == nil {
		return
	}
	s.Errors = append(s.Errors, phase+": "+err.Error())
}
