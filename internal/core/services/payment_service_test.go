package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

type paymentFixture struct {
	svc      ports.PaymentService
	payments *fakePaymentRepo
	users    *fakeUserRepo
	gateway  *fakeGateway
	events   *fakePublisher
	userID   uuid.UUID
}

func newPaymentFixture() *paymentFixture {
	users := newFakeUserRepo()
	payments := newFakePaymentRepo()
	gateway := &fakeGateway{
		pushResp: &ports.StkPushResponse{
			MerchantRequestID:   "29115-34620561-1",
			CheckoutRequestID:   "ws_CO_191220191020363925",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
		},
	}
	events := &fakePublisher{}

	user := &domain.User{
		ID:          uuid.New(),
		Name:        "Wanjiru Kamau",
		Email:       "wanjiru@example.com",
		PhoneNumber: "0712345678",
		Role:        domain.RoleIndividual,
	}
	users.users[user.ID] = user

	return &paymentFixture{
		svc:      NewPaymentService(payments, users, gateway, events, zap.NewNop()),
		payments: payments,
		users:    users,
		gateway:  gateway,
		events:   events,
		userID:   user.ID,
	}
}

func (f *paymentFixture) createInput() ports.CreatePaymentInput {
	return ports.CreatePaymentInput{
		UserID:           f.userID,
		Amount:           500,
		Description:      "Invoice payment",
		AccountReference: "INV001",
	}
}

func TestCreatePayment(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusInitiated, payment.Status)
	assert.Equal(t, "254712345678", payment.PhoneNumber)
	assert.Nil(t, payment.CheckoutRequestID)
	require.NotNil(t, f.payments.payments[payment.ID], "intent must be durable before any gateway call")
}

func TestCreatePaymentUnknownUser(t *testing.T) {
	f := newPaymentFixture()

	input := f.createInput()
	input.UserID = uuid.New()
	_, err := f.svc.CreatePayment(context.Background(), input)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newPaymentFixture()

	for _, amount := range []float64{0, -10} {
		input := f.createInput()
		input.Amount = amount
		_, err := f.svc.CreatePayment(context.Background(), input)
		require.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestInitiateStkPush(t *testing.T) {
	f := newPaymentFixture()

	created, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)

	initiated, err := f.svc.InitiateStkPush(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusStkPushSent, initiated.Status)
	require.NotNil(t, initiated.CheckoutRequestID)
	assert.Equal(t, "ws_CO_191220191020363925", *initiated.CheckoutRequestID)

	require.NotNil(t, f.gateway.lastPush)
	assert.Equal(t, "254712345678", f.gateway.lastPush.PhoneNumber)
	assert.Equal(t, "INV001", f.gateway.lastPush.AccountReference)
}

func TestInitiateStkPushGatewayFailureLeavesInitiated(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.pushErr = domain.ErrGateway

	created, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.InitiateStkPush(context.Background(), created.ID)
	require.ErrorIs(t, err, domain.ErrGateway)

	stored := f.payments.payments[created.ID]
	assert.Equal(t, domain.PaymentStatusInitiated, stored.Status)
	assert.Nil(t, stored.CheckoutRequestID)
}

func TestInitiateStkPushRejectsNonInitiatedPayment(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.InitiateStkPush(context.Background(), payment.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestReconcileCallbackSuccess(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	cb := successCallback(*payment.CheckoutRequestID, "NLJ7RT61SV")
	require.NoError(t, f.svc.ReconcileCallback(context.Background(), cb))

	stored := f.payments.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.MpesaReceiptID)
	assert.Equal(t, "NLJ7RT61SV", *stored.MpesaReceiptID)
	require.NotNil(t, stored.ResultCode)
	assert.Equal(t, 0, *stored.ResultCode)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, domain.PaymentStatusCompleted, f.events.events[0].NewStatus)
}

func TestReconcileCallbackFailure(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	cb := ports.StkCallback{
		CheckoutRequestID: *payment.CheckoutRequestID,
		ResultCode:        1,
		ResultDesc:        "The balance is insufficient for the transaction",
	}
	require.NoError(t, f.svc.ReconcileCallback(context.Background(), cb))

	stored := f.payments.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
	assert.Nil(t, stored.MpesaReceiptID)
	require.NotNil(t, stored.ResultCode)
	assert.Equal(t, 1, *stored.ResultCode)
	require.NotNil(t, stored.ResultDesc)
	assert.Equal(t, "The balance is insufficient for the transaction", *stored.ResultDesc)
}

func TestReconcileDuplicateCallbackIsDiscarded(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	checkoutID := *payment.CheckoutRequestID
	require.NoError(t, f.svc.ReconcileCallback(context.Background(), successCallback(checkoutID, "NLJ7RT61SV")))

	// A late duplicate with a failing code must not overwrite the terminal state.
	dup := ports.StkCallback{CheckoutRequestID: checkoutID, ResultCode: 1, ResultDesc: "late duplicate"}
	require.NoError(t, f.svc.ReconcileCallback(context.Background(), dup))

	stored := f.payments.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "NLJ7RT61SV", *stored.MpesaReceiptID)
	assert.Len(t, f.events.events, 1, "no event for the discarded duplicate")
}

func TestReconcileCallbackUnknownCheckoutID(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.ReconcileCallback(context.Background(), successCallback("ws_CO_unknown", "XYZ")))

	stored := f.payments.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusStkPushSent, stored.Status, "no state mutation anywhere")
	assert.Empty(t, f.events.events)
}

func TestReconcileCallbackIgnoresUnknownMetadataItems(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	cb := ports.StkCallback{CheckoutRequestID: *payment.CheckoutRequestID, ResultCode: 0, ResultDesc: "Success"}
	cb.CallbackMetadata.Item = []ports.CallbackItem{
		{Name: "Amount", Value: 500.0},
		{Name: "SomeFutureField", Value: "ignored"},
		{Name: "MpesaReceiptNumber", Value: "NLJ7RT61SV"},
		{Name: "PhoneNumber", Value: 254712345678.0},
	}
	require.NoError(t, f.svc.ReconcileCallback(context.Background(), cb))

	stored := f.payments.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "NLJ7RT61SV", *stored.MpesaReceiptID)
}

func TestSyncPaymentStatus(t *testing.T) {
	tests := []struct {
		name       string
		rawBody    string
		wantStatus domain.PaymentStatus
	}{
		{"completed", `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"Processed successfully"}`, domain.PaymentStatusCompleted},
		{"cancelled by user", `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`, domain.PaymentStatusCancelled},
		{"timed out", `{"ResponseCode":"0","ResultCode":"1037","ResultDesc":"DS timeout"}`, domain.PaymentStatusTimedOut},
		{"other failure", `{"ResponseCode":"0","ResultCode":2001,"ResultDesc":"Wrong pin"}`, domain.PaymentStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
			require.NoError(t, err)

			f.gateway.queryRaw = []byte(tt.rawBody)
			synced, err := f.svc.SyncPaymentStatus(context.Background(), payment.ID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, synced.Status)
			assert.Equal(t, *payment.CheckoutRequestID, f.gateway.lastQueryID)
		})
	}
}

func TestSyncPaymentStatusStillPending(t *testing.T) {
	f := newPaymentFixture()
	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	// No ResultCode yet: the push is still waiting on the handset.
	f.gateway.queryRaw = []byte(`{"ResponseCode":"0","ResponseDescription":"The transaction is being processed"}`)

	synced, err := f.svc.SyncPaymentStatus(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusStkPushSent, synced.Status)
}

func TestSyncPaymentStatusGatewayError(t *testing.T) {
	f := newPaymentFixture()
	payment, err := f.svc.CreateAndInitiate(context.Background(), f.createInput())
	require.NoError(t, err)

	f.gateway.queryErr = errors.Join(domain.ErrGateway, errors.New("status 500"))
	_, err = f.svc.SyncPaymentStatus(context.Background(), payment.ID)
	require.ErrorIs(t, err, domain.ErrGateway)
}

func TestGetPaymentEnforcesOwnership(t *testing.T) {
	f := newPaymentFixture()

	payment, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)

	got, err := f.svc.GetPayment(context.Background(), payment.ID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	// A foreign requester sees not-found, not forbidden.
	_, err = f.svc.GetPayment(context.Background(), payment.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestListUserPaymentsNewestFirst(t *testing.T) {
	f := newPaymentFixture()

	first, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)
	f.payments.payments[first.ID].CreatedAt = time.Now().Add(-time.Hour)

	second, err := f.svc.CreatePayment(context.Background(), f.createInput())
	require.NoError(t, err)

	list, err := f.svc.ListUserPayments(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func successCallback(checkoutID, receipt string) ports.StkCallback {
	cb := ports.StkCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	}
	cb.CallbackMetadata.Item = []ports.CallbackItem{
		{Name: "Amount", Value: 500.0},
		{Name: "MpesaReceiptNumber", Value: receipt},
		{Name: "TransactionDate", Value: 20191219102115.0},
		{Name: "PhoneNumber", Value: 254712345678.0},
	}
	return cb
}
