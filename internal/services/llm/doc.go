// Package llm provides an OpenRouter-compatible chat client used to
// categorize forum posts.
//
// The client sends a system prompt plus the post title, body, and source kind
// and asks for a JSON object carrying a category label. Responses wrapped in
// code fences or padded with prose are tolerated by DecodeLLMJSON.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty completions, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default). Retry-After headers are honoured up to the max delay. Context
// cancellation aborts retries immediately.
//
// Callers own the fallback: a failed Categorize call should be mapped to the
// default category rather than aborting the batch.
package llm
