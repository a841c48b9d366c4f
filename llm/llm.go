// Package llm abstracts text generation behind a small interface so the
// agent and backroom services can be tested with canned generators.
package llm

import "context"

// Request is one completion request. Model may be empty to use the
// client's default.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Generator produces a completion for a request.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}
