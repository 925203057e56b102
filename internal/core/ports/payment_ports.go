package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Payment, error)

	// MarkStkPushSent attaches the gateway correlation id and advances the
	// payment from initiated to stk_push_sent. Returns false when the payment
	// is no longer in the initiated state.
	MarkStkPushSent(ctx context.Context, id uuid.UUID, checkoutRequestID string) (bool, error)

	// Finalize moves a non-terminal payment to a terminal status, recording
	// the gateway result. Returns false when a terminal status was already
	// persisted, in which case the update must be dropped.
	Finalize(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, resultCode int, resultDesc string, receiptID *string) (bool, error)
}

type CreatePaymentInput struct {
	UserID           uuid.UUID
	Amount           float64
	Description      string
	AccountReference string
}

type PaymentService interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error)
	InitiateStkPush(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	CreateAndInitiate(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error)
	ReconcileCallback(ctx context.Context, callback StkCallback) error
	SyncPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	GetPayment(ctx context.Context, paymentID, requesterID uuid.UUID) (*domain.Payment, error)
	ListUserPayments(ctx context.Context, userID uuid.UUID) ([]*domain.Payment, error)
}
