package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
)

type PaymentStatusEvent struct {
	PaymentID      uuid.UUID            `json:"payment_id"`
	UserID         uuid.UUID            `json:"user_id"`
	PreviousStatus domain.PaymentStatus `json:"previous_status"`
	NewStatus      domain.PaymentStatus `json:"new_status"`
	MpesaReceiptID *string              `json:"mpesa_receipt_id,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// EventPublisher announces durable payment status transitions. Publishing is
// best effort: a failed publish is logged by the caller and never rolls back
// the transition it describes.
type EventPublisher interface {
	PublishPaymentStatus(ctx context.Context, event PaymentStatusEvent) error
	Close() error
}
