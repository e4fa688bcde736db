package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"threadwatch/internal/forum"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine(statusLine{label: "Store", kind: statusError, message: "unreachable"}, false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Store:", "[ERROR] unreachable")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine(statusLine{label: "Store", kind: statusOK}, true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green wrapped line, got %q", got)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(time.Minute), "0m"},
		{now.Add(-45 * time.Minute), "45m"},
		{now.Add(-5 * time.Hour), "5h"},
		{now.Add(-72 * time.Hour), "3d"},
	}
	for _, tt := range tests {
		if got := formatAge(now, tt.at); got != tt.want {
			t.Fatalf("formatAge(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncateText("line one\nline two", 0); got != "line one line two" {
		t.Fatalf("expected newlines flattened, got %q", got)
	}
	if got := truncateText("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestRenderPostsTableFlags(t *testing.T) {
	now := time.Now()
	out := renderPostsTable([]forum.Post{
		{ID: 7, Forum: "zwift", Title: "Trainer noise", Category: forum.CategoryIndoorCycling, CreatedAt: now, Notified: true, Responded: true},
		{ID: 8, Forum: "cycling", Title: "Quiet", Category: forum.Other("Route Planning"), CreatedAt: now},
	}, now, false)
	requireContains(t, out, "NR")
	requireContains(t, out, "IndoorCycling")
	requireContains(t, out, "Route Planning")
}
