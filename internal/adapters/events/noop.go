package events

import (
	"context"

	"github.com/sokopay/api/internal/core/ports"
)

// NoopPublisher is wired when no broker is configured. Payment transitions
// proceed unchanged; nothing is announced.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) PublishPaymentStatus(context.Context, ports.PaymentStatusEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
