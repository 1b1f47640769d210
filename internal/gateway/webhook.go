package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// SignatureHeader carries the HMAC of a webhook body.
const SignatureHeader = "x-paystack-signature"

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// DedupKey identifies a webhook delivery across retries.
func (e *WebhookEvent) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", e.Event, e.Data.Reference, e.Data.Status)
}

// VerifySignature checks the HMAC-SHA512 of body against the header value.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(c.secretKey, body, signature)
}

func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Sign returns the hex HMAC-SHA512 Paystack sends with a webhook body.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ParseWebhook verifies and decodes a webhook delivery.
func (c *Client) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !c.VerifySignature(body, signature) {
		return nil, ErrInvalidSignature
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Data.Reference == "" {
		return nil, fmt.Errorf("decode webhook: missing reference")
	}
	return &ev, nil
}
