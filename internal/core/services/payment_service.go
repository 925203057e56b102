package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

// Gateway result codes surfaced by the status query. The callback path only
// ever produces completed or failed.
const (
	gatewayResultSuccess   = 0
	gatewayResultCancelled = 1032
	gatewayResultTimeout   = 1037
)

type PaymentService struct {
	payments ports.PaymentRepository
	users    ports.UserRepository
	gateway  ports.PaymentGateway
	events   ports.EventPublisher
	logger   *zap.Logger
}

func NewPaymentService(
	payments ports.PaymentRepository,
	users ports.UserRepository,
	gateway ports.PaymentGateway,
	events ports.EventPublisher,
	logger *zap.Logger,
) ports.PaymentService {
	return &PaymentService{
		payments: payments,
		users:    users,
		gateway:  gateway,
		events:   events,
		logger:   logger,
	}
}

// CreatePayment persists the intent before any external call is made, so a
// crash between creation and gateway acknowledgment leaves discoverable
// evidence. The returned record's id is what initiation must be called with.
func (s *PaymentService) CreatePayment(ctx context.Context, input ports.CreatePaymentInput) (*domain.Payment, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           user.ID,
		Amount:           input.Amount,
		PhoneNumber:      domain.NormalizeMsisdn(user.PhoneNumber),
		Description:      input.Description,
		AccountReference: input.AccountReference,
		Status:           domain.PaymentStatusInitiated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

// InitiateStkPush drives the gateway push for the given payment and advances
// it to stk_push_sent. A gateway failure leaves the record in initiated.
func (s *PaymentService) InitiateStkPush(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusInitiated {
		return nil, fmt.Errorf("%w: payment %s is %s", domain.ErrConflict, payment.ID, payment.Status)
	}

	resp, err := s.gateway.InitiateStkPush(ctx, ports.StkPushRequest{
		PhoneNumber:      domain.NormalizeMsisdn(payment.PhoneNumber),
		Amount:           payment.Amount,
		AccountReference: payment.AccountReference,
		Description:      payment.Description,
	})
	if err != nil {
		s.logger.Error("stk push initiation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to initiate stk push: %w", err)
	}

	advanced, err := s.payments.MarkStkPushSent(ctx, payment.ID, resp.CheckoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to record stk push: %w", err)
	}
	if !advanced {
		s.logger.Warn("payment advanced concurrently, dropping stk push transition",
			zap.String("payment_id", payment.ID.String()),
			zap.String("checkout_request_id", resp.CheckoutRequestID))
		return nil, fmt.Errorf("%w: payment %s already advanced", domain.ErrConflict, payment.ID)
	}

	payment.Status = domain.PaymentStatusStkPushSent
	payment.CheckoutRequestID = &resp.CheckoutRequestID
	return payment, nil
}

func (s *PaymentService) CreateAndInitiate(ctx context.Context, input ports.CreatePaymentInput) (*domain.Payment, error) {
	payment, err := s.CreatePayment(ctx, input)
	if err != nil {
		return nil, err
	}

	initiated, err := s.InitiateStkPush(ctx, payment.ID)
	if err != nil {
		// The record stays in initiated; callers get it back alongside the
		// error so the attempt remains traceable.
		return payment, err
	}
	return initiated, nil
}

// ReconcileCallback applies the gateway's asynchronous outcome notification.
// The sender is an uncontrolled third party delivering at-least-once, so an
// unknown correlation id and a duplicate for an already-terminal payment are
// both absorbed without error.
func (s *PaymentService) ReconcileCallback(ctx context.Context, callback ports.StkCallback) error {
	payment, err := s.payments.GetByCheckoutRequestID(ctx, callback.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("failed to look up payment for callback: %w", err)
	}
	if payment == nil {
		s.logger.Warn("callback for unknown checkout request id",
			zap.String("checkout_request_id", callback.CheckoutRequestID),
			zap.Int("result_code", callback.ResultCode))
		return nil
	}
	if payment.Status.Terminal() {
		s.logger.Info("discarding callback for already-terminal payment",
			zap.String("payment_id", payment.ID.String()),
			zap.String("status", string(payment.Status)))
		return nil
	}

	status := domain.PaymentStatusFailed
	var receipt *string
	if callback.ResultCode == gatewayResultSuccess {
		status = domain.PaymentStatusCompleted
		receipt = callback.ReceiptNumber()
	}

	applied, err := s.payments.Finalize(ctx, payment.ID, status, callback.ResultCode, callback.ResultDesc, receipt)
	if err != nil {
		return fmt.Errorf("failed to finalize payment: %w", err)
	}
	if !applied {
		s.logger.Warn("terminal transition lost the race, dropping callback",
			zap.String("payment_id", payment.ID.String()),
			zap.String("attempted_status", string(status)))
		return nil
	}

	s.publishTransition(ctx, payment, status, receipt)
	return nil
}

// SyncPaymentStatus queries the gateway for the outcome of a push whose
// callback never arrived. This is the only path into the cancelled and
// timed_out states.
func (s *PaymentService) SyncPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status.Terminal() || payment.CheckoutRequestID == nil {
		return payment, nil
	}

	raw, err := s.gateway.QueryPushStatus(ctx, *payment.CheckoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push status: %w", err)
	}

	resultCode, resultDesc, ok := parseQueryResult(raw)
	if !ok {
		// No result yet: the push is still pending on the handset.
		s.logger.Info("status query returned no result, payment still pending",
			zap.String("payment_id", payment.ID.String()))
		return payment, nil
	}

	var status domain.PaymentStatus
	switch resultCode {
	case gatewayResultSuccess:
		status = domain.PaymentStatusCompleted
	case gatewayResultCancelled:
		status = domain.PaymentStatusCancelled
	case gatewayResultTimeout:
		status = domain.PaymentStatusTimedOut
	default:
		status = domain.PaymentStatusFailed
	}

	applied, err := s.payments.Finalize(ctx, payment.ID, status, resultCode, resultDesc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize payment: %w", err)
	}
	if !applied {
		s.logger.Warn("terminal transition lost the race during status sync",
			zap.String("payment_id", payment.ID.String()))
		return s.payments.GetByID(ctx, paymentID)
	}

	s.publishTransition(ctx, payment, status, nil)

	payment.Status = status
	payment.ResultCode = &resultCode
	payment.ResultDesc = &resultDesc
	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID, requesterID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	// A foreign payment reads as missing; ownership is not disclosed.
	if payment == nil || payment.UserID != requesterID {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID uuid.UUID) ([]*domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) publishTransition(ctx context.Context, payment *domain.Payment, newStatus domain.PaymentStatus, receipt *string) {
	event := ports.PaymentStatusEvent{
		PaymentID:      payment.ID,
		UserID:         payment.UserID,
		PreviousStatus: payment.Status,
		NewStatus:      newStatus,
		MpesaReceiptID: receipt,
		OccurredAt:     time.Now(),
	}
	if err := s.events.PublishPaymentStatus(ctx, event); err != nil {
		s.logger.Error("failed to publish payment status event",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
	}
}

// parseQueryResult pulls ResultCode/ResultDesc out of the raw status-query
// body. The gateway encodes the code as a string in some environments and a
// number in others, so both are accepted.
func parseQueryResult(raw []byte) (code int, desc string, ok bool) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, "", false
	}

	v, present := body["ResultCode"]
	if !present {
		return 0, "", false
	}
	switch rc := v.(type) {
	case string:
		n, err := strconv.Atoi(rc)
		if err != nil {
			return 0, "", false
		}
		code = n
	case float64:
		code = int(rc)
	default:
		return 0, "", false
	}

	desc, _ = body["ResultDesc"].(string)
	return code, desc, true
}
