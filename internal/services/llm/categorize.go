package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CategorizePrompt instructs the model to pick one of the fixed categories or
// propose a short Other label.
const CategorizePrompt = `You categorize cycling forum threads.
Pick exactly one category:
- "Performance": training, power, racing, fitness, coaching, physiology.
- "IndoorCycling": smart trainers, indoor apps, rollers, virtual rides.
- "Other:<label>": anything else, where <label> is one to three words naming the topic.
Respond with JSON only: {"category":"<category>","confidence":<0-1>,"reason":"<short reason>"}`

// maxBodyRunes bounds the body excerpt sent to the model.
const maxBodyRunes = 2000

// Request carries the post fields the model sees.
type Request struct {
	Title string
	Body  string
	Kind  string
	Forum string
}

// Categorization captures the JSON payload returned by the model.
type Categorization struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Raw        string  `json:"-"`
}

// Categorize asks the model to label a single post.
func (c *Client) Categorize(ctx context.Context, req Request) (Categorization, error) {
	var empty Categorization
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return empty, errors.New("llm categorize: title required")
	}
	content, err := c.CompleteJSON(ctx, CategorizePrompt, buildUserPrompt(req))
	if err != nil {
		return empty, err
	}
	var parsed Categorization
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("llm categorize: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Category = strings.TrimSpace(parsed.Category)
	if parsed.Category == "" {
		return empty, errors.New("llm categorize: empty category")
	}
	parsed.Confidence = min(max(parsed.Confidence, 0), 1)
	parsed.Reason = strings.TrimSpace(parsed.Reason)
	return parsed, nil
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s", strings.TrimSpace(req.Kind))
	if forum := strings.TrimSpace(req.Forum); forum != "" {
		fmt.Fprintf(&b, " (%s)", forum)
	}
	fmt.Fprintf(&b, "\nTitle: %s\n", strings.TrimSpace(req.Title))
	body := strings.TrimSpace(req.Body)
	if runes := []rune(body); len(runes) > maxBodyRunes {
		body = string(runes[:maxBodyRunes]) + "..."
	}
	if body != "" {
		fmt.Fprintf(&b, "Body:\n%s\n", body)
	}
	return b.String()
}
