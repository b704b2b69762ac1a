package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, address, accountID string, isNew bool) error
	PublishBound(ctx context.Context, address, accountID string) error
	PublishLogout(ctx context.Context, accountID string, tokenID string) error
}
