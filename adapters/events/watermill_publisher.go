package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/wubuku/UniAuth/ports"
)

const (
	TopicWeb3Login = "uniauth.web3.login"
	TopicWeb3Bound = "uniauth.web3.bound"
	TopicLogout    = "uniauth.logout"
)

// LoginEvent is published after a successful wallet sign-in
type LoginEvent struct {
	WalletAddress string    `json:"wallet_address"`
	AccountID     string    `json:"account_id"`
	IsNewUser     bool      `json:"is_new_user"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BoundEvent is published after a wallet is bound to an existing account
type BoundEvent struct {
	WalletAddress string    `json:"wallet_address"`
	AccountID     string    `json:"account_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	AccountID  string    `json:"account_id"`
	TokenID    string    `json:"token_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a wallet login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address, accountID string, isNew bool) error {
	return p.publish(ctx, TopicWeb3Login, LoginEvent{
		WalletAddress: address,
		AccountID:     accountID,
		IsNewUser:     isNew,
		OccurredAt:    time.Now().UTC(),
	})
}

// PublishBound publishes a wallet binding event
func (p *WatermillPublisher) PublishBound(ctx context.Context, address, accountID string) error {
	return p.publish(ctx, TopicWeb3Bound, BoundEvent{
		WalletAddress: address,
		AccountID:     accountID,
		OccurredAt:    time.Now().UTC(),
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, accountID string, tokenID string) error {
	return p.publish(ctx, TopicLogout, LogoutEvent{
		AccountID:  accountID,
		TokenID:    tokenID,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NoopPublisher drops every event. Used when event publishing is disabled.
type NoopPublisher struct{}

var _ ports.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishLogin(context.Context, string, string, bool) error { return nil }
func (NoopPublisher) PublishBound(context.Context, string, string) error       { return nil }
func (NoopPublisher) PublishLogout(context.Context, string, string) error      { return nil }
