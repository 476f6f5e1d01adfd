// Package llm provides the completion capability and the prompt/parsing
// machinery around it. The model is treated as an untrusted, latency-bearing
// external dependency: every response goes through cleanup and validation
// before the rest of the system sees it.
package llm

import "context"

// Model is the text-completion capability the review pipeline depends on.
type Model interface {
	// Complete sends a prompt and returns the raw model output.
	Complete(ctx context.Context, prompt string) (string, error)
}
