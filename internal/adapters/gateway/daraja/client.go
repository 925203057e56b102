package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sokopay/api/internal/config"
	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

const (
	tokenPath     = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath   = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath  = "/mpesa/stkpushquery/v1/query"
	timestampForm = "20060102150405"
)

// Client talks to the M-Pesa Daraja API. It holds no state beyond its
// configuration; access tokens are fetched per call and never cached here.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	httpClient     *http.Client
	logger         *zap.Logger
	now            func() time.Time
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        cfg.Mpesa.BaseURL,
		consumerKey:    cfg.Mpesa.ConsumerKey,
		consumerSecret: cfg.Mpesa.ConsumerSecret,
		shortCode:      cfg.Mpesa.ShortCode,
		passkey:        cfg.Mpesa.Passkey,
		callbackURL:    cfg.Mpesa.CallbackURL,
		httpClient:     &http.Client{Timeout: cfg.Mpesa.Timeout},
		logger:         logger,
		now:            time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// GetAccessToken exchanges the consumer credentials for a short-lived bearer
// token via the basic-auth challenge.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayAuth, err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange failed: %v", domain.ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: token exchange returned status %d", domain.ErrGatewayAuth, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: malformed token response: %v", domain.ErrGatewayAuth, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", domain.ErrGatewayAuth)
	}
	return body.AccessToken, nil
}

type stkPushRequestBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// InitiateStkPush sends the push-payment request and returns the gateway's
// structural acknowledgment verbatim.
func (c *Client) InitiateStkPush(ctx context.Context, push ports.StkPushRequest) (*ports.StkPushResponse, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampForm)
	body := stkPushRequestBody{
		BusinessShortCode: c.shortCode,
		Password:          c.derivePassword(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            fmt.Sprintf("%.0f", push.Amount),
		PartyA:            push.PhoneNumber,
		PartyB:            c.shortCode,
		PhoneNumber:       push.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  push.AccountReference,
		TransactionDesc:   push.Description,
	}

	raw, err := c.post(ctx, stkPushPath, token, body)
	if err != nil {
		return nil, err
	}

	response := &ports.StkPushResponse{}
	if err := json.Unmarshal(raw, response); err != nil {
		return nil, fmt.Errorf("%w: malformed stk push response: %v", domain.ErrGateway, err)
	}

	c.logger.Info("stk push accepted by gateway",
		zap.String("checkout_request_id", response.CheckoutRequestID),
		zap.String("response_code", response.ResponseCode))
	return response, nil
}

type stkQueryRequestBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryPushStatus returns the raw status-query body; the query schema is less
// stable than the push schema, so interpretation is the caller's.
func (c *Client) QueryPushStatus(ctx context.Context, checkoutRequestID string) ([]byte, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampForm)
	body := stkQueryRequestBody{
		BusinessShortCode: c.shortCode,
		Password:          c.derivePassword(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	return c.post(ctx, stkQueryPath, token, body)
}

func (c *Client) post(ctx context.Context, path, token string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s failed: %v", domain.ErrGateway, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", domain.ErrGateway, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d: %s", domain.ErrGateway, path, resp.StatusCode, raw)
	}
	return raw, nil
}

// derivePassword computes the time-varying request password as
// base64(shortcode + passkey + timestamp).
func (c *Client) derivePassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
}
