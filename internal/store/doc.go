// Package store persists posts, comments, and the request log.
//
// Two backends satisfy the Store interface: SQLite (the default, a single
// file in the data directory) and Postgres via pgxpool. Uniqueness lives in
// the schema: UNIQUE(source_id) on posts and UNIQUE(post_id, author,
// created_at) on comments. UpsertPosts reports only rows it inserted, so
// re-observing a thread refreshes its volatile fields without ever making it
// "new" again. Notified, category, and responded flags survive re-observation.
//
// The store is the only component that mutates persisted state. Posts are
// never deleted by the cycle. Schema changes bump schemaVersion; users clear
// the database to adopt the new schema.
package store
