// Package freshness decides what a cycle should fetch now.
//
// Poll-due gates listing fetches on the most recent observation across all
// sources. Classify sorts stored posts into the hot and stale backfill
// queues. A post that already has any stored comment is never queued again.
package freshness

import (
	"cmp"
	"slices"
	"time"
)

// Defaults used when Policy fields are zero.
const (
	DefaultPollInterval   = 15 * time.Minute
	DefaultHotMinAge      = 15 * time.Minute
	DefaultHotMaxAge      = 60 * time.Minute
	DefaultHotMinComments = 15
)

// State is a backfill classification.
type State string

const (
	StateNone  State = "none"
	StateHot   State = "hot"
	StateStale State = "stale"
)

// Candidate is the per-post view the policy needs.
type Candidate struct {
	PostID         int64
	CreatedAt      time.Time
	CommentCount   int
	StoredComments int
}

// Policy holds the temporal thresholds.
type Policy struct {
	PollInterval   time.Duration
	HotMinAge      time.Duration
	HotMaxAge      time.Duration
	HotMinComments int
	// BackfillLookback limits stale backfill to recent posts when positive.
	BackfillLookback time.Duration
}

// DefaultPolicy returns the policy with the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:   DefaultPollInterval,
		HotMinAge:      DefaultHotMinAge,
		HotMaxAge:      DefaultHotMaxAge,
		HotMinComments: DefaultHotMinComments,
	}
}

// PollDue reports whether a new round of listing fetches should run. A zero
// lastFetch means nothing has been observed yet.
func (p Policy) PollDue(now, lastFetch time.Time) bool {
	if lastFetch.IsZero() {
		return true
	}
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return now.Sub(lastFetch) >= interval
}

// Classify returns the backfill state of a candidate at now.
func (p Policy) Classify(now time.Time, c Candidate) State {
	if c.StoredComments > 0 {
		return StateNone
	}
	age := now.Sub(c.CreatedAt)
	switch {
	case age >= p.HotMinAge && age < p.HotMaxAge && c.CommentCount >= p.HotMinComments:
		return StateHot
	case age >= p.HotMaxAge:
		return StateStale
	default:
		return StateNone
	}
}

// Queues splits candidates into the hot queue, sorted by comment count
// descending with ties broken newest first, and the stale queue, sorted
// newest first.
func (p Policy) Queues(now time.Time, candidates []Candidate) (hot, stale []Candidate) {
	for _, c := range candidates {
		switch p.Classify(now, c) {
		case StateHot:
			hot = append(hot, c)
		case StateStale:
			stale = append(stale, c)
		}
	}
	slices.SortStableFunc(hot, func(a, b Candidate) int {
		if byCount := cmp.Compare(b.CommentCount, a.CommentCount); byCount != 0 {
			return byCount
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	slices.SortStableFunc(stale, func(a, b Candidate) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return hot, stale
}

// BackfillSince returns the oldest creation time considered for backfill.
// The zero time means no bound.
func (p Policy) BackfillSince(now time.Time) time.Time {
	if p.BackfillLookback <= 0 {
		return time.Time{}
	}
	return now.Add(-p.BackfillLookback)
}
