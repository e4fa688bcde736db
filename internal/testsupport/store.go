package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/forum"
	"threadwatch/internal/store"
)

// MustOpenStore opens the configured store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewPost builds a reddit post with a deterministic source id.
func NewPost(n int, createdAt time.Time, comments int) forum.Post {
	return forum.Post{
		SourceID:     fmt.Sprintf("reddit:p%d", n),
		Forum:        "testsub",
		Title:        fmt.Sprintf("post %d", n),
		Author:       "tester",
		CreatedAt:    createdAt.UTC(),
		CommentCount: comments,
		URL:          fmt.Sprintf("https://www.reddit.com/r/testsub/comments/p%d/", n),
		Kind:         forum.KindReddit,
	}
}

// SeedPosts upserts posts and fails the test when any row is rejected.
func SeedPosts(t testing.TB, st store.Store, posts ...forum.Post) []forum.Post {
	t.Helper()

	inserted, err := st.UpsertPosts(context.Background(), posts)
	if err != nil {
		t.Fatalf("UpsertPosts: %v", err)
	}
	return inserted
}
