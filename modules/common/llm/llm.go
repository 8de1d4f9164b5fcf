package llm

import "context"

// Client abstracts the chat completion backend so the story and dialogue
// services can run against a mock in tests.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
