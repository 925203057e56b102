package ports

import (
	"context"
	"fmt"
)

type StkPushRequest struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	Description      string
}

// StkPushResponse mirrors the gateway's push acknowledgment verbatim. No
// business interpretation happens at this level.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type PaymentGateway interface {
	GetAccessToken(ctx context.Context) (string, error)
	InitiateStkPush(ctx context.Context, req StkPushRequest) (*StkPushResponse, error)
	// QueryPushStatus returns the raw response body. The gateway's status
	// query schema is less stable than its push schema, so interpretation is
	// left to the caller.
	QueryPushStatus(ctx context.Context, checkoutRequestID string) ([]byte, error)
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// StkCallbackEnvelope is the exact wire shape of the asynchronous gateway
// notification: the payload nests under Body.stkCallback.
type StkCallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// ReceiptNumber scans the metadata items for the MpesaReceiptNumber entry.
// Unknown item names are ignored.
func (c StkCallback) ReceiptNumber() *string {
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" || item.Value == nil {
			continue
		}
		receipt := fmt.Sprintf("%v", item.Value)
		return &receipt
	}
	return nil
}
