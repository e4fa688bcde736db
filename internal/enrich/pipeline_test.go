package enrich_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"threadwatch/internal/budget"
	"threadwatch/internal/enrich"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services/llm"
	"threadwatch/internal/sources"
	"threadwatch/internal/testsupport"
)

type scriptedClassifier struct {
	results map[string]forum.Category
	fail    map[string]bool
	calls   []string
}

func (c *scriptedClassifier) Classify(_ context.Context, post forum.Post) (forum.Category, error) {
	c.calls = append(c.calls, post.SourceID)
	if c.fail[post.SourceID] {
		return forum.CategoryNone, errors.New("model unavailable")
	}
	return c.results[post.SourceID], nil
}

func noSleep(delays *[]time.Duration) []budget.Option {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []budget.Option{
		budget.WithClock(func() time.Time { return fixed }),
		budget.WithSleeper(func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		}),
	}
}

func TestCategorizePartialFailureUsesFallback(t *testing.T) {
	now := time.Now()
	posts := []forum.Post{
		testsupport.NewPost(1, now, 0),
		testsupport.NewPost(2, now, 0),
		testsupport.NewPost(3, now, 0),
	}
	classifier := &scriptedClassifier{
		results: map[string]forum.Category{
			"reddit:p1": forum.CategoryPerformance,
			"reddit:p3": forum.CategoryIndoorCycling,
		},
		fail: map[string]bool{"reddit:p2": true},
	}
	var delays []time.Duration
	pipeline := enrich.NewPipeline(classifier, 500*time.Millisecond, enrich.WithPacing(noSleep(&delays)...))

	res := pipeline.Run(context.Background(), posts)

	got := []forum.Category{}
	for _, post := range res.Posts {
		got = append(got, post.Category)
	}
	want := []forum.Category{forum.CategoryPerformance, forum.CategoryFallback, forum.CategoryIndoorCycling}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if res.Classified != 2 || res.Failed != 1 || res.Bypassed != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if diff := cmp.Diff([]string{"reddit:p1", "reddit:p2", "reddit:p3"}, classifier.calls); diff != "" {
		t.Fatalf("classifier call order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, delays); diff != "" {
		t.Fatalf("cooldown mismatch (-want +got):\n%s", diff)
	}
}

func TestCategorizeBypassesFixedCategory(t *testing.T) {
	now := time.Now()
	fixed := testsupport.NewPost(1, now, 0)
	fixed.Category = forum.CategoryIndoorCycling
	open := testsupport.NewPost(2, now, 0)

	classifier := &scriptedClassifier{results: map[string]forum.Category{"reddit:p2": forum.Other("bike fit")}}
	var delays []time.Duration
	pipeline := enrich.NewPipeline(classifier, time.Second, enrich.WithPacing(noSleep(&delays)...))

	posts := pipeline.Categorize(context.Background(), []forum.Post{fixed, open})
	if posts[0].Category != forum.CategoryIndoorCycling || posts[1].Category != forum.Other("bike fit") {
		t.Fatalf("unexpected categories %q, %q", posts[0].Category, posts[1].Category)
	}
	if diff := cmp.Diff([]string{"reddit:p2"}, classifier.calls); diff != "" {
		t.Fatalf("classifier calls mismatch (-want +got):\n%s", diff)
	}
	if len(delays) != 0 {
		t.Fatalf("expected first classifier call unthrottled, got %v", delays)
	}
}

func TestCategorizeEmptyResultFallsBack(t *testing.T) {
	classifier := &scriptedClassifier{results: map[string]forum.Category{}}
	pipeline := enrich.NewPipeline(classifier, 0)
	posts := pipeline.Categorize(context.Background(), []forum.Post{testsupport.NewPost(1, time.Now(), 0)})
	if posts[0].Category != forum.CategoryFallback {
		t.Fatalf("expected fallback category, got %q", posts[0].Category)
	}
}

func TestStaticClassifier(t *testing.T) {
	got, err := enrich.StaticClassifier{}.Classify(context.Background(), forum.Post{})
	if err != nil || got != forum.CategoryFallback {
		t.Fatalf("expected fallback, got %q, %v", got, err)
	}
	got, _ = enrich.StaticClassifier{Category: forum.CategoryPerformance}.Classify(context.Background(), forum.Post{})
	if got != forum.CategoryPerformance {
		t.Fatalf("expected configured category, got %q", got)
	}
}

func TestNewFromConfigWithoutKeyUsesStatic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var recorded []forum.RequestLog
	rec := sources.RecorderFunc(func(_ context.Context, e forum.RequestLog) error {
		recorded = append(recorded, e)
		return nil
	})
	pipeline := enrich.NewFromConfig(cfg, rec)
	posts := pipeline.Categorize(context.Background(), []forum.Post{testsupport.NewPost(1, time.Now(), 0)})
	if posts[0].Category != forum.CategoryFallback {
		t.Fatalf("expected fallback without api key, got %q", posts[0].Category)
	}
	if len(recorded) != 0 {
		t.Fatalf("expected no classify requests, got %d", len(recorded))
	}
}

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLLMClassifierParsesAndRecords(t *testing.T) {
	server := completionServer(t, http.StatusOK, `{"category":"Other: route planning","confidence":0.7,"reason":"gps"}`)
	var recorded []forum.RequestLog
	rec := sources.RecorderFunc(func(_ context.Context, e forum.RequestLog) error {
		recorded = append(recorded, e)
		return nil
	})
	client := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	classifier := enrich.NewLLMClassifier(client, rec)

	got, err := classifier.Classify(context.Background(), testsupport.NewPost(1, time.Now(), 0))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != forum.Other("Route Planning") {
		t.Fatalf("unexpected category %q", got)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected one classify request, got %d", len(recorded))
	}
	entry := recorded[0]
	if entry.Kind != forum.RequestClassify || !entry.Success || entry.StatusCode != 200 || entry.URL != server.URL {
		t.Fatalf("unexpected classify entry %+v", entry)
	}
}

func TestLLMClassifierRecordsFailure(t *testing.T) {
	server := completionServer(t, http.StatusUnauthorized, "")
	var recorded []forum.RequestLog
	rec := sources.RecorderFunc(func(_ context.Context, e forum.RequestLog) error {
		recorded = append(recorded, e)
		return nil
	})
	client := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"}, llm.WithRetryMaxAttempts(1))
	pipeline := enrich.NewPipeline(enrich.NewLLMClassifier(client, rec), 0)

	res := pipeline.Run(context.Background(), []forum.Post{testsupport.NewPost(1, time.Now(), 0)})
	if res.Failed != 1 || res.Posts[0].Category != forum.CategoryFallback {
		t.Fatalf("expected fallback after model failure, got %+v", res)
	}
	if len(recorded) != 1 || recorded[0].Success || recorded[0].StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected failed classify entry, got %+v", recorded)
	}
}

func TestLLMClassifierLogsRecorderFailure(t *testing.T) {
	server := completionServer(t, http.StatusOK, `{"category":"Performance"}`)
	rec := sources.RecorderFunc(func(context.Context, forum.RequestLog) error {
		return errors.New("disk full")
	})
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	client := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	classifier := enrich.NewLLMClassifier(client, rec, enrich.WithClassifierLogger(logger))

	got, err := classifier.Classify(context.Background(), testsupport.NewPost(1, time.Now(), 0))
	if err != nil || got != forum.CategoryPerformance {
		t.Fatalf("expected classification to survive a recorder failure, got %q, %v", got, err)
	}
	for _, fragment := range []string{"request log write failed", "disk full", "reddit:p1"} {
		if !strings.Contains(buf.String(), fragment) {
			t.Fatalf("expected %q in debug log, got %q", fragment, buf.String())
		}
	}
}

func TestNewLLMClientSendsOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithLLM(server.URL, "k"))

	client := enrich.NewLLMClient(cfg)
	if _, err := client.Categorize(context.Background(), llm.Request{Title: "t", Kind: "reddit"}); err == nil {
		t.Fatal("expected error from unavailable model")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}

	hits.Store(0)
	retrying := enrich.NewLLMClient(cfg, llm.WithRetryMaxAttempts(2), llm.WithSleeper(func(time.Duration) {}))
	if _, err := retrying.Categorize(context.Background(), llm.Request{Title: "t", Kind: "reddit"}); err == nil {
		t.Fatal("expected error from unavailable model")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected caller override to allow 2 attempts, got %d", got)
	}
}
