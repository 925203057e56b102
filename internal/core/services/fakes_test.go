package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*domain.User{}}
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) SetSession(_ context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time, lastLoginAt time.Time) error {
	u := r.users[userID]
	u.RefreshToken = &refreshToken
	u.RefreshTokenExpiresAt = &expiresAt
	u.LastLoginAt = &lastLoginAt
	return nil
}

func (r *fakeUserRepo) RotateRefreshToken(_ context.Context, userID uuid.UUID, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	u := r.users[userID]
	if u == nil || u.RefreshToken == nil || *u.RefreshToken != oldToken {
		return false, nil
	}
	u.RefreshToken = &newToken
	u.RefreshTokenExpiresAt = &expiresAt
	return true, nil
}

func (r *fakeUserRepo) ClearSession(_ context.Context, userID uuid.UUID) error {
	if u := r.users[userID]; u != nil {
		u.RefreshToken = nil
		u.RefreshTokenExpiresAt = nil
	}
	return nil
}

type fakePaymentRepo struct {
	payments map[uuid.UUID]*domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[uuid.UUID]*domain.Payment{}}
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	clone := *payment
	r.payments[payment.ID] = &clone
	return nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	p := r.payments[id]
	if p == nil {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (r *fakePaymentRepo) GetByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*domain.Payment, error) {
	for _, p := range r.payments {
		if p.CheckoutRequestID != nil && *p.CheckoutRequestID == checkoutRequestID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Payment, error) {
	list := []*domain.Payment{}
	for _, p := range r.payments {
		if p.UserID == userID {
			clone := *p
			list = append(list, &clone)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *fakePaymentRepo) MarkStkPushSent(_ context.Context, id uuid.UUID, checkoutRequestID string) (bool, error) {
	p := r.payments[id]
	if p == nil || p.Status != domain.PaymentStatusInitiated {
		return false, nil
	}
	p.Status = domain.PaymentStatusStkPushSent
	p.CheckoutRequestID = &checkoutRequestID
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakePaymentRepo) Finalize(_ context.Context, id uuid.UUID, status domain.PaymentStatus, resultCode int, resultDesc string, receiptID *string) (bool, error) {
	p := r.payments[id]
	if p == nil || p.Status.Terminal() {
		return false, nil
	}
	p.Status = status
	p.ResultCode = &resultCode
	p.ResultDesc = &resultDesc
	if receiptID != nil {
		p.MpesaReceiptID = receiptID
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

type fakeGateway struct {
	pushResp    *ports.StkPushResponse
	pushErr     error
	queryRaw    []byte
	queryErr    error
	lastPush    *ports.StkPushRequest
	lastQueryID string
}

func (g *fakeGateway) GetAccessToken(context.Context) (string, error) {
	return "fake-token", nil
}

func (g *fakeGateway) InitiateStkPush(_ context.Context, req ports.StkPushRequest) (*ports.StkPushResponse, error) {
	g.lastPush = &req
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	return g.pushResp, nil
}

func (g *fakeGateway) QueryPushStatus(_ context.Context, checkoutRequestID string) ([]byte, error) {
	g.lastQueryID = checkoutRequestID
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return g.queryRaw, nil
}

type fakePublisher struct {
	events []ports.PaymentStatusEvent
}

func (p *fakePublisher) PublishPaymentStatus(_ context.Context, event ports.PaymentStatusEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }
