// Package notifications delivers threadwatch events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events carry a
// small string payload so the cycle can describe a post without the notifier
// depending on storage types beyond forum.Post.
package notifications
