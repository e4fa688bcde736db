package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, `{"ok":true}`))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail")
	}
	if got := StatusCode(err); got != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", got)
	}
}

func TestClientCategorizeSendsPostFields(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		completionHandler(t, "```json\n{\"category\":\"IndoorCycling\",\"confidence\":1.4,\"reason\":\"trainer\"}\n```")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result, err := client.Categorize(context.Background(), Request{
		Title: "Which smart trainer?",
		Body:  "Looking at direct drive options",
		Kind:  "reddit",
		Forum: "cycling",
	})
	if err != nil {
		t.Fatalf("Categorize returned error: %v", err)
	}
	if result.Category != "IndoorCycling" {
		t.Fatalf("unexpected category %q", result.Category)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", result.Confidence)
	}
	if !strings.Contains(result.Raw, "```") {
		t.Fatalf("expected raw payload to retain code fence, got %q", result.Raw)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(captured.Messages))
	}
	user := captured.Messages[1].Content
	for _, fragment := range []string{"Source: reddit (cycling)", "Title: Which smart trainer?", "direct drive"} {
		if !strings.Contains(user, fragment) {
			t.Fatalf("expected %q in user prompt %q", fragment, user)
		}
	}
}

func TestClientCategorizeRequiresTitle(t *testing.T) {
	client := NewClient(Config{APIKey: "test", BaseURL: "http://127.0.0.1:0"})
	if _, err := client.Categorize(context.Background(), Request{Body: "no title"}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestClientCategorizeEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, ""))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Categorize(context.Background(), Request{Title: "hello"})
	if err == nil {
		t.Fatal("expected categorize to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		completionHandler(t, `{"category":"Performance","confidence":0.9}`)(w, r)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(3),
	)
	result, err := client.Categorize(context.Background(), Request{Title: "FTP test tips"})
	if err != nil {
		t.Fatalf("Categorize returned error: %v", err)
	}
	if result.Category != "Performance" {
		t.Fatalf("unexpected category %q", result.Category)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Categorize(context.Background(), Request{Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDecodeLLMJSONExtractsObject(t *testing.T) {
	var parsed Categorization
	if err := DecodeLLMJSON(`Sure! {"category":"Other:Gear"} hope that helps`, &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON returned error: %v", err)
	}
	if parsed.Category != "Other:Gear" {
		t.Fatalf("unexpected category %q", parsed.Category)
	}
	if err := DecodeLLMJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 3*time.Second))
	if got := client.backoffDelay(1); got != time.Second {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := client.backoffDelay(2); got != 2*time.Second {
		t.Fatalf("attempt 2: got %s", got)
	}
	if got := client.backoffDelay(5); got != 3*time.Second {
		t.Fatalf("attempt 5: got %s", got)
	}
}
