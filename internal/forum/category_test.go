package forum_test

import (
	"testing"
	"time"

	"threadwatch/internal/forum"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want forum.Category
	}{
		{"", forum.CategoryNone},
		{"Performance", forum.CategoryPerformance},
		{" performance ", forum.CategoryPerformance},
		{"IndoorCycling", forum.CategoryIndoorCycling},
		{"indoor cycling", forum.CategoryIndoorCycling},
		{"indoor_cycling", forum.CategoryIndoorCycling},
		{"Other:bike fit", forum.Category("Other:Bike Fit")},
		{"other", forum.CategoryFallback},
		{"nutrition", forum.Category("Other:Nutrition")},
	}
	for _, tc := range tests {
		if got := forum.ParseCategory(tc.raw); got != tc.want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	if got := forum.Other("gear  talk").Label(); got != "Gear Talk" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := forum.CategoryPerformance.Label(); got != "Performance" {
		t.Fatalf("unexpected label %q", got)
	}
	if !forum.CategoryFallback.IsOther() {
		t.Fatal("expected fallback to be an Other category")
	}
}

func TestIsRemovedBody(t *testing.T) {
	for _, body := range []string{
		"", "   ", "[deleted]", "[Removed]",
		"(post deleted by author)",
		"(post withdrawn by author, will be automatically deleted in 24 hours unless flagged)",
	} {
		if !forum.IsRemovedBody(body) {
			t.Fatalf("expected %q to be treated as removed", body)
		}
	}
	if forum.IsRemovedBody("great ride today") {
		t.Fatal("expected regular body to be kept")
	}
}

func TestPostAge(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	post := forum.Post{CreatedAt: now.Add(-20 * time.Minute)}
	if got := post.Age(now); got != 20*time.Minute {
		t.Fatalf("unexpected age %s", got)
	}
	if got := (forum.Post{}).Age(now); got != 0 {
		t.Fatalf("expected zero age for unknown creation time, got %s", got)
	}
}
