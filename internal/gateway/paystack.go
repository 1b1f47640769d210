package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hostelpay/internal/models"
)

var (
	// ErrRejected is returned when the gateway answers with status=false.
	ErrRejected = errors.New("gateway rejected the request")
	// ErrUnavailable wraps transport failures and 5xx answers.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrUnsupportedNetwork is returned for a network Paystack has no provider code for.
	ErrUnsupportedNetwork = errors.New("unsupported mobile money network")
)

// Transaction statuses as normalised from Paystack's verify answer.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Client talks to the Paystack REST API.
type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	callback   string
	httpClient *http.Client
}

type InitializeRequest struct {
	Email     string
	Amount    float64
	Reference string
	Metadata  map[string]string
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type ChargeRequest struct {
	Email     string
	Amount    float64
	Reference string
	Network   string
	Phone     string
	Metadata  map[string]string
}

type ChargeResult struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	DisplayText string `json:"display_text"`
}

type Verification struct {
	Reference string
	Status    string
	// GatewayStatus is the raw status string returned by Paystack.
	GatewayStatus string
	Amount        float64
	Currency      string
	PaidAt        *time.Time
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient constructs a Paystack client. timeout <= 0 falls back to 15s.
func NewClient(baseURL, secretKey, currency, callbackURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		currency:   currency,
		callback:   callbackURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InitializeTransaction opens a card transaction and returns the popup
// access code together with the hosted checkout URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    ToMinorUnits(req.Amount),
		"currency":  c.currency,
		"reference": req.Reference,
		"channels":  []string{"card", "mobile_money"},
	}
	if c.callback != "" {
		body["callback_url"] = c.callback
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var auth Authorization
	if err := c.doPost(ctx, c.baseURL+"/transaction/initialize", body, &auth); err != nil {
		return nil, fmt.Errorf("initialize transaction %s: %w", req.Reference, err)
	}
	if auth.Reference == "" {
		auth.Reference = req.Reference
	}
	return &auth, nil
}

// ChargeMobileMoney sends a carrier prompt to the customer's wallet.
func (c *Client) ChargeMobileMoney(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	provider, err := ProviderCode(req.Network)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"email":     req.Email,
		"amount":    ToMinorUnits(req.Amount),
		"currency":  c.currency,
		"reference": req.Reference,
		"mobile_money": map[string]string{
			"phone":    req.Phone,
			"provider": provider,
		},
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var res ChargeResult
	if err := c.doPost(ctx, c.baseURL+"/charge", body, &res); err != nil {
		return nil, fmt.Errorf("charge mobile money %s: %w", req.Reference, err)
	}
	if res.Reference == "" {
		res.Reference = req.Reference
	}
	return &res, nil
}

// VerifyTransaction fetches the settlement status of a reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	var raw struct {
		Reference string  `json:"reference"`
		Status    string  `json:"status"`
		Amount    int64   `json:"amount"`
		Currency  string  `json:"currency"`
		PaidAt    *string `json:"paid_at"`
	}
	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	if err := c.doGet(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", reference, err)
	}

	v := &Verification{
		Reference:     raw.Reference,
		Status:        NormalizeStatus(raw.Status),
		GatewayStatus: raw.Status,
		Amount:        FromMinorUnits(raw.Amount),
		Currency:      raw.Currency,
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	if raw.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *raw.PaidAt); err == nil {
			v.PaidAt = &t
		}
	}
	return v, nil
}

// NormalizeStatus folds Paystack's transaction statuses into success, failed or pending.
func NormalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case "success":
		return StatusSuccess
	case "failed", "reversed", "abandoned":
		return StatusFailed
	default:
		return StatusPending
	}
}

// ProviderCode maps a network name to Paystack's mobile money provider code.
func ProviderCode(network string) (string, error) {
	switch network {
	case models.NetworkMTN:
		return "mtn", nil
	case models.NetworkVodafone:
		return "vod", nil
	case models.NetworkAirtelTigo:
		return "atl", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
}

// ToMinorUnits converts cedis to pesewas.
func ToMinorUnits(amount float64) int64 {
	return models.ToMinorUnits(amount)
}

func FromMinorUnits(amount int64) float64 {
	return models.FromMinorUnits(amount)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode http %d answer: %v", ErrUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
}
