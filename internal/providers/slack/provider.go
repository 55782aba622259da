package slack

import "context"

// Provider posts operational messages to a chat channel. The notification
// worker uses it to flag deliveries that ran out of retries.
type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}
