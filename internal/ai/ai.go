package ai

import "context"

type Message struct {
	Role    string
	Content string
}

// Provider is a blocking chat-completion backend. System goes into the
// provider's system slot when supported; messages are user/assistant turns.
type Provider interface {
	Chat(ctx context.Context, system string, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, system string, messages []Message) (<-chan string, <-chan error)
}
