package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusInitiated   PaymentStatus = "initiated"
	PaymentStatusStkPushSent PaymentStatus = "stk_push_sent"
	PaymentStatusCompleted   PaymentStatus = "completed"
	PaymentStatusFailed      PaymentStatus = "failed"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
	PaymentStatusTimedOut    PaymentStatus = "timed_out"
)

// Terminal reports whether the status accepts no further transitions.
// Reconciliation events arriving after a terminal status are discarded.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusTimedOut:
		return true
	}
	return false
}

type Payment struct {
	ID                uuid.UUID     `json:"id"`
	UserID            uuid.UUID     `json:"user_id"`
	Amount            float64       `json:"amount"`
	PhoneNumber       string        `json:"phone_number"`
	Description       string        `json:"description"`
	AccountReference  string        `json:"account_reference"`
	Status            PaymentStatus `json:"status"`
	CheckoutRequestID *string       `json:"checkout_request_id,omitempty"`
	MpesaReceiptID    *string       `json:"mpesa_receipt_id,omitempty"`
	ResultCode        *int          `json:"result_code,omitempty"`
	ResultDesc        *string       `json:"result_desc,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
