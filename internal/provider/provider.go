package provider

import "context"

// Event is one item of a completion stream: a text fragment or a fatal
// stream error. The channel is closed when the upstream finishes or the
// context is cancelled; cancellation is not reported as an Event.
type Event struct {
	Fragment string
	Err      error
}

// CompletionProvider produces a finite, non-restartable stream of text
// fragments for a prompt. Implementations must stop promptly when the
// context is cancelled and close the channel without emitting an error.
type CompletionProvider interface {
	StreamCompletion(ctx context.Context, prompt string) (<-chan Event, error)
}
