package daemonrun_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"threadwatch/internal/config"
	"threadwatch/internal/cycle"
	"threadwatch/internal/daemon"
	"threadwatch/internal/daemonrun"
	"threadwatch/internal/testsupport"
)

const listing = `{"kind":"Listing","data":{"children":[
 {"kind":"t3","data":{"name":"t3_abc","subreddit":"testsub","title":"hello","author":"alice",
  "created_utc":1700000000,"score":3,"num_comments":0,"permalink":"/r/testsub/comments/abc/hello/","selftext":"body"}}
]}}`

func TestRunOnceStoresPolledPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t,
		testsupport.WithBudget(0),
		testsupport.WithSource(config.Source{
			Kind:    config.SourceKindReddit,
			BaseURL: srv.URL,
			Forum:   "testsub",
		}),
	)

	rt, err := daemonrun.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	summary, err := rt.RunOnce(context.Background(), cycle.Options{Force: true})
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.NewPostsFound != 1 {
		t.Fatalf("expected 1 new post, got %+v", summary)
	}

	posts, err := rt.Store.RecentPosts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPosts failed: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "hello" {
		t.Fatalf("unexpected stored posts: %+v", posts)
	}

	requests, err := rt.Store.RecentRequests(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRequests failed: %v", err)
	}
	if len(requests) == 0 {
		t.Fatal("expected the listing request to be recorded")
	}
}

func TestRunOnceRefusesWhenLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rt, err := daemonrun.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	held := daemon.NewLock(cfg.LockPath())
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	t.Cleanup(func() { _ = held.Release() })

	if _, err := rt.RunOnce(context.Background(), cycle.Options{}); !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenRejectsUnknownSourceKind(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSource(config.Source{Kind: "usenet", Name: "x"}))
	if _, err := daemonrun.Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}
