// Package enrich assigns a category to newly discovered posts.
//
// The Pipeline calls its Classifier once per post, strictly in order, with a
// fixed cooldown between calls. A failed classification yields
// forum.CategoryFallback so one bad response never blocks the rest of the
// batch. Posts that already carry a category, such as those from sources
// configured with a fixed category, are passed through untouched.
package enrich
