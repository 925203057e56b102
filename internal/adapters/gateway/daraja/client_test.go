package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestClient(baseURL string) *Client {
	return &Client{
		baseURL:        baseURL,
		consumerKey:    "key",
		consumerSecret: "secret",
		shortCode:      "174379",
		passkey:        "passkey",
		callbackURL:    "https://api.example.com/api/payments/callback",
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		logger:         zap.NewNop(),
		now:            func() time.Time { return fixedNow },
	}
}

func TestGetAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-123","expires_in":"3599"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-123", token)
}

func TestGetAccessTokenFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"errorMessage":"invalid credentials"}`},
		{"missing token field", http.StatusOK, `{"expires_in":"3599"}`},
		{"malformed body", http.StatusOK, `not-json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).GetAccessToken(context.Background())
			require.ErrorIs(t, err, domain.ErrGatewayAuth)
		})
	}
}

func TestInitiateStkPush(t *testing.T) {
	var pushBody stkPushRequestBody

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			w.Write([]byte(`{"access_token":"token-123"}`))
		case "/mpesa/stkpush/v1/processrequest":
			assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&pushBody))
			w.Write([]byte(`{
				"MerchantRequestID":"29115-34620561-1",
				"CheckoutRequestID":"ws_CO_191220191020363925",
				"ResponseCode":"0",
				"ResponseDescription":"Success. Request accepted for processing",
				"CustomerMessage":"Success. Request accepted for processing"
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).InitiateStkPush(context.Background(), ports.StkPushRequest{
		PhoneNumber:      "254712345678",
		Amount:           500,
		AccountReference: "INV001",
		Description:      "Invoice payment",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)
	assert.Equal(t, "0", resp.ResponseCode)

	wantTimestamp := fixedNow.Format("20060102150405")
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + wantTimestamp))

	assert.Equal(t, "174379", pushBody.BusinessShortCode)
	assert.Equal(t, wantPassword, pushBody.Password)
	assert.Equal(t, wantTimestamp, pushBody.Timestamp)
	assert.Equal(t, "CustomerPayBillOnline", pushBody.TransactionType)
	assert.Equal(t, "500", pushBody.Amount)
	assert.Equal(t, "254712345678", pushBody.PartyA)
	assert.Equal(t, "174379", pushBody.PartyB)
	assert.Equal(t, "254712345678", pushBody.PhoneNumber)
	assert.Equal(t, "https://api.example.com/api/payments/callback", pushBody.CallBackURL)
	assert.Equal(t, "INV001", pushBody.AccountReference)
	assert.Equal(t, "Invoice payment", pushBody.TransactionDesc)
}

func TestInitiateStkPushGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			w.Write([]byte(`{"access_token":"token-123"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errorMessage":"system busy"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).InitiateStkPush(context.Background(), ports.StkPushRequest{
		PhoneNumber: "254712345678",
		Amount:      500,
	})
	require.ErrorIs(t, err, domain.ErrGateway)
}

func TestQueryPushStatusReturnsRawBody(t *testing.T) {
	rawResponse := `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`

	var queryBody stkQueryRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			w.Write([]byte(`{"access_token":"token-123"}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&queryBody))
		w.Write([]byte(rawResponse))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).QueryPushStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.JSONEq(t, rawResponse, string(raw))
	assert.Equal(t, "ws_CO_191220191020363925", queryBody.CheckoutRequestID)
}
