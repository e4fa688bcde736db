package cycle_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"threadwatch/internal/config"
	"threadwatch/internal/cycle"
	"threadwatch/internal/enrich"
	"threadwatch/internal/forum"
	"threadwatch/internal/notifications"
	"threadwatch/internal/store"
	"threadwatch/internal/testsupport"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAdapter struct {
	name     string
	kind     forum.Kind
	mu       sync.Mutex
	posts    []forum.Post
	err      error
	panicMsg string
	listings int
	fetched  []string
}

func (a *fakeAdapter) Name() string     { return a.name }
func (a *fakeAdapter) Kind() forum.Kind { return a.kind }

func (a *fakeAdapter) FetchNewPosts(context.Context) ([]forum.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listings++
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	if a.err != nil {
		return nil, a.err
	}
	return append([]forum.Post(nil), a.posts...), nil
}

func (a *fakeAdapter) FetchComments(_ context.Context, post forum.Post) ([]forum.Comment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetched = append(a.fetched, post.SourceID)
	return []forum.Comment{
		{PostID: post.ID, Author: "commenter", Body: "reply to " + post.Title, CreatedAt: post.CreatedAt.Add(time.Minute), Kind: post.Kind},
	}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	titles []string
	fail   bool
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("ntfy down")
	}
	n.events = append(n.events, event)
	n.titles = append(n.titles, payload["title"])
	return nil
}

func (n *recordingNotifier) Enabled() bool { return true }

type countingClassifier struct {
	calls int
}

func (c *countingClassifier) Classify(context.Context, forum.Post) (forum.Category, error) {
	c.calls++
	return forum.CategoryPerformance, nil
}

type fixture struct {
	cfg      *config.Config
	clock    *testClock
	store    store.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := testsupport.NewConfig(t, opts...)
	return &fixture{
		cfg:      cfg,
		clock:    clock,
		store:    testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now)),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) runner(srcs []cycle.Source, pipeline *enrich.Pipeline) *cycle.Runner {
	ids := 0
	return cycle.NewRunner(f.cfg, cycle.Deps{
		Store:    f.store,
		Sources:  srcs,
		Pipeline: pipeline,
		Notifier: f.notifier,
	}, cycle.WithClock(f.clock.Now), cycle.WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("cycle-%d", ids)
	}))
}

func TestBackfillBudgetPrefersHotThenNewestStale(t *testing.T) {
	f := newFixture(t, testsupport.WithBudget(5))
	now := f.clock.Now()
	testsupport.SeedPosts(t, f.store,
		testsupport.NewPost(1, now.Add(-20*time.Minute), 50),
		testsupport.NewPost(2, now.Add(-30*time.Minute), 20),
		testsupport.NewPost(3, now.Add(-40*time.Minute), 100),
		testsupport.NewPost(4, now.Add(-25*time.Minute), 3),
		testsupport.NewPost(5, now.Add(-2*time.Hour), 0),
		testsupport.NewPost(6, now.Add(-3*time.Hour), 8),
		testsupport.NewPost(7, now.Add(-4*time.Hour), 1),
		testsupport.NewPost(8, now.Add(-5*time.Hour), 30),
		testsupport.NewPost(9, now.Add(-6*time.Hour), 2),
	)
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit}

	summary := f.runner([]cycle.Source{{Adapter: adapter}}, nil).Run(context.Background(), cycle.Options{})

	if !summary.PollSkipped {
		t.Fatal("expected poll skipped right after seeding")
	}
	if adapter.listings != 0 {
		t.Fatalf("expected no listing fetches, got %d", adapter.listings)
	}
	want := []string{"reddit:p3", "reddit:p1", "reddit:p2", "reddit:p5", "reddit:p6"}
	if diff := cmp.Diff(want, adapter.fetched); diff != "" {
		t.Fatalf("backfill order mismatch (-want +got):\n%s", diff)
	}
	if summary.HotPostsFound != 3 || summary.StalePostsFound != 5 {
		t.Fatalf("expected 3 hot and 5 stale, got %d/%d", summary.HotPostsFound, summary.StalePostsFound)
	}
	if summary.CommentFetches != 5 || summary.CommentsProcessed != 5 || !summary.BudgetExhausted {
		t.Fatalf("unexpected budget accounting: %+v", summary)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", summary.Errors)
	}
}

func TestTwoCycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()
	postA := testsupport.NewPost(1, t0.Add(-30*time.Minute), 20)
	postB := testsupport.NewPost(2, t0.Add(-2*time.Hour), 4)
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit, posts: []forum.Post{postA, postB}}
	runner := f.runner([]cycle.Source{{Adapter: adapter}}, nil)

	first := runner.Run(context.Background(), cycle.Options{})
	if first.CycleID != "cycle-1" || !first.StoreHealthy || first.PollSkipped {
		t.Fatalf("unexpected first cycle header: %+v", first)
	}
	if first.SourcesPolled != 1 || first.CandidatesFetched != 2 || first.NewPostsFound != 2 {
		t.Fatalf("unexpected first cycle poll counts: %+v", first)
	}
	if first.Categorized != 2 || first.Notified != 2 {
		t.Fatalf("unexpected first cycle enrichment counts: %+v", first)
	}
	if first.HotPostsFound != 1 || first.StalePostsFound != 1 || first.CommentsProcessed != 2 {
		t.Fatalf("unexpected first cycle backfill counts: %+v", first)
	}

	f.clock.Advance(20 * time.Minute)
	postA.Score = 99
	postC := testsupport.NewPost(3, f.clock.Now().Add(-5*time.Minute), 0)
	adapter.posts = []forum.Post{postA, postB, postC}

	second := runner.Run(context.Background(), cycle.Options{})
	if second.CycleID != "cycle-2" || second.PollSkipped {
		t.Fatalf("expected second cycle to poll: %+v", second)
	}
	if second.CandidatesFetched != 3 || second.NewPostsFound != 1 || second.Notified != 1 {
		t.Fatalf("unexpected second cycle counts: %+v", second)
	}
	if second.HotPostsFound != 0 || second.StalePostsFound != 0 || second.CommentFetches != 0 {
		t.Fatalf("expected nothing to backfill: %+v", second)
	}
	if diff := cmp.Diff([]string{postB.Title, postA.Title, postC.Title}, f.notifier.titles); diff != "" {
		t.Fatalf("notification titles mismatch (-want +got):\n%s", diff)
	}

	recent, err := f.store.RecentPosts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPosts failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 stored posts, got %d", len(recent))
	}
	for _, post := range recent {
		if !post.Notified || post.Category != forum.CategoryFallback {
			t.Fatalf("expected notified fallback-categorized post, got %+v", post)
		}
		if post.SourceID == postA.SourceID && post.Score != 99 {
			t.Fatalf("expected refreshed score on re-observed post, got %d", post.Score)
		}
	}
}

func TestKnownPostIsNotNewAndBecomesHot(t *testing.T) {
	f := newFixture(t)
	postB := testsupport.NewPost(2, f.clock.Now().Add(-3*time.Hour), 4)
	testsupport.SeedPosts(t, f.store, postB)
	f.clock.Advance(15 * time.Minute)

	t0 := f.clock.Now()
	postA := testsupport.NewPost(1, t0.Add(-2*time.Minute), 0)
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit, posts: []forum.Post{postA, postB}}
	runner := f.runner([]cycle.Source{{Adapter: adapter}}, nil)

	first := runner.Run(context.Background(), cycle.Options{})
	if first.PollSkipped || first.CandidatesFetched != 2 || first.NewPostsFound != 1 {
		t.Fatalf("expected only A to be new at t=0: %+v", first)
	}
	if first.HotPostsFound != 0 {
		t.Fatalf("A is too young to be hot at t=0: %+v", first)
	}

	f.clock.Advance(20 * time.Minute)
	postA.CommentCount = 16
	adapter.posts = []forum.Post{postA, postB}

	second := runner.Run(context.Background(), cycle.Options{})
	if second.PollSkipped || second.NewPostsFound != 0 {
		t.Fatalf("expected no new posts at t+20m: %+v", second)
	}
	if second.HotPostsFound != 1 || second.StalePostsFound != 0 {
		t.Fatalf("expected A alone in the hot queue: %+v", second)
	}
	if diff := cmp.Diff([]string{postB.SourceID, postA.SourceID}, adapter.fetched); diff != "" {
		t.Fatalf("comment fetch order mismatch (-want +got):\n%s", diff)
	}
}

// failingClassifier errors for one title and labels everything else.
type failingClassifier struct {
	failTitle string
}

func (c failingClassifier) Classify(_ context.Context, post forum.Post) (forum.Category, error) {
	if post.Title == c.failTitle {
		return forum.CategoryNone, errors.New("upstream 502")
	}
	return forum.CategoryPerformance, nil
}

func TestCategorizationFailureKeepsCycleCounts(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit, posts: []forum.Post{
		testsupport.NewPost(1, now.Add(-time.Minute), 0),
		testsupport.NewPost(2, now.Add(-2*time.Minute), 0),
		testsupport.NewPost(3, now.Add(-3*time.Minute), 0),
	}}
	pipeline := enrich.NewPipeline(failingClassifier{failTitle: "post 2"}, 0)

	summary := f.runner([]cycle.Source{{Adapter: adapter}}, pipeline).Run(context.Background(), cycle.Options{})

	if summary.NewPostsFound != 3 || summary.Categorized != 3 || summary.Notified != 3 {
		t.Fatalf("expected all three posts stored, categorized and notified: %+v", summary)
	}
	recent, err := f.store.RecentPosts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPosts failed: %v", err)
	}
	got := map[string]forum.Category{}
	for _, post := range recent {
		got[post.SourceID] = post.Category
	}
	want := map[string]forum.Category{
		"reddit:p1": forum.CategoryPerformance,
		"reddit:p2": forum.CategoryFallback,
		"reddit:p3": forum.CategoryPerformance,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestPollSkippedUntilIntervalUnlessForced(t *testing.T) {
	f := newFixture(t)
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit, posts: []forum.Post{
		testsupport.NewPost(1, f.clock.Now().Add(-time.Minute), 0),
	}}
	runner := f.runner([]cycle.Source{{Adapter: adapter}}, nil)

	runner.Run(context.Background(), cycle.Options{})
	f.clock.Advance(5 * time.Minute)

	skipped := runner.Run(context.Background(), cycle.Options{})
	if !skipped.PollSkipped || adapter.listings != 1 {
		t.Fatalf("expected poll skipped inside interval, listings=%d summary=%+v", adapter.listings, skipped)
	}

	forced := runner.Run(context.Background(), cycle.Options{Force: true})
	if forced.PollSkipped || adapter.listings != 2 {
		t.Fatalf("expected forced poll, listings=%d summary=%+v", adapter.listings, forced)
	}
}

type unhealthyStore struct {
	store.Store
}

func (unhealthyStore) Health(context.Context) store.Health {
	return store.Health{Backend: store.BackendPostgres, Detail: "connection refused"}
}

func TestDegradedStoreYieldsNoopSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit}
	runner := cycle.NewRunner(cfg, cycle.Deps{
		Store:    unhealthyStore{},
		Sources:  []cycle.Source{{Adapter: adapter}},
		Notifier: notifier,
	})

	summary := runner.Run(context.Background(), cycle.Options{Force: true})
	if summary.StoreHealthy || !summary.Degraded() || !summary.PollSkipped {
		t.Fatalf("expected degraded summary, got %+v", summary)
	}
	if adapter.listings != 0 || summary.CommentFetches != 0 {
		t.Fatalf("expected no source traffic, got listings=%d", adapter.listings)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected one store error, got %v", summary.Errors)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventStoreDegraded}, notifier.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if summary.CycleID == "" {
		t.Fatal("expected generated cycle id")
	}
}

func TestSourceFailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	good := &fakeAdapter{name: "reddit:good", kind: forum.KindReddit, posts: []forum.Post{
		testsupport.NewPost(1, f.clock.Now().Add(-time.Minute), 0),
	}}
	failing := &fakeAdapter{name: "reddit:bad", kind: forum.KindReddit, err: errors.New("status 503")}
	panicking := &fakeAdapter{name: "discourse:broken", kind: forum.KindDiscourse, panicMsg: "nil map"}

	summary := f.runner([]cycle.Source{{Adapter: failing}, {Adapter: good}, {Adapter: panicking}}, nil).
		Run(context.Background(), cycle.Options{})

	if summary.SourcesPolled != 3 || summary.SourceErrors != 2 {
		t.Fatalf("expected 3 polled with 2 errors, got %+v", summary)
	}
	if summary.NewPostsFound != 1 || summary.Notified != 1 {
		t.Fatalf("expected good source post stored and notified, got %+v", summary)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("expected two recorded errors, got %v", summary.Errors)
	}
}

func TestFixedCategoryBypassesClassifier(t *testing.T) {
	f := newFixture(t)
	classifier := &countingClassifier{}
	pipeline := enrich.NewPipeline(classifier, 0)
	fixed := &fakeAdapter{name: "reddit:zwift", kind: forum.KindReddit, posts: []forum.Post{
		testsupport.NewPost(1, f.clock.Now().Add(-time.Minute), 0),
	}}
	open := &fakeAdapter{name: "reddit:velo", kind: forum.KindReddit, posts: []forum.Post{
		testsupport.NewPost(2, f.clock.Now().Add(-time.Minute), 0),
	}}

	summary := f.runner([]cycle.Source{
		{Adapter: fixed, Category: forum.CategoryIndoorCycling},
		{Adapter: open},
	}, pipeline).Run(context.Background(), cycle.Options{})

	if summary.Categorized != 2 || classifier.calls != 1 {
		t.Fatalf("expected one classifier call for two posts, calls=%d summary=%+v", classifier.calls, summary)
	}
	recent, err := f.store.RecentPosts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPosts failed: %v", err)
	}
	got := map[string]forum.Category{}
	for _, post := range recent {
		got[post.SourceID] = post.Category
	}
	want := map[string]forum.Category{"reddit:p1": forum.CategoryIndoorCycling, "reddit:p2": forum.CategoryPerformance}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestNotificationRecoveryAfterInterruptedCycle(t *testing.T) {
	f := newFixture(t)
	testsupport.SeedPosts(t, f.store, testsupport.NewPost(1, f.clock.Now().Add(-3*time.Hour), 0))
	adapter := &fakeAdapter{name: "reddit:testsub", kind: forum.KindReddit}

	f.notifier.fail = true
	failed := f.runner([]cycle.Source{{Adapter: adapter}}, nil).Run(context.Background(), cycle.Options{Force: true})
	if failed.Notified != 0 || failed.Categorized != 1 || len(failed.Errors) == 0 {
		t.Fatalf("expected categorized but undelivered post, got %+v", failed)
	}

	f.notifier.fail = false
	recovered := f.runner([]cycle.Source{{Adapter: adapter}}, nil).Run(context.Background(), cycle.Options{Force: true})
	if recovered.Notified != 1 || recovered.Categorized != 0 {
		t.Fatalf("expected pending post delivered on retry, got %+v", recovered)
	}
	pending, err := f.store.UnnotifiedPosts(context.Background(), 0)
	if err != nil {
		t.Fatalf("UnnotifiedPosts failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(pending))
	}
}
