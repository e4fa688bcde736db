// Package cycle orchestrates one scrape cycle.
//
// A cycle checks store health, polls every source concurrently when the poll
// interval has elapsed, persists and categorizes new posts, notifies the
// operator, and then spends a bounded budget of comment fetches on the hot
// and stale backfill queues. Run never returns an error: failures in any
// phase are logged and recorded on the Summary so callers can always report
// what happened.
package cycle
