package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hostelpay/internal/models"
	"hostelpay/internal/payment"
)

// InitializeResponse is the body of POST /api/bookings/initialize-payment.
type InitializeResponse struct {
	Success          bool   `json:"success"`
	AccessCode       string `json:"access_code,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Reference        string `json:"reference"`
	BookingID        string `json:"bookingId"`
	Message          string `json:"message,omitempty"`
}

// MobilePaymentResponse is the body of POST /api/bookings/mobile-payment.
type MobilePaymentResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	BookingID string `json:"bookingId"`
	Message   string `json:"message,omitempty"`
}

// VerifyResponse is the body of GET /api/payments/verify/{reference}.
type VerifyResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    models.Verification `json:"data"`
}

// Backend is the booking API the flows talk to.
type Backend interface {
	InitializePayment(ctx context.Context, intent payment.Intent) (*InitializeResponse, error)
	MobilePayment(ctx context.Context, intent payment.Intent) (*MobilePaymentResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*VerifyResponse, error)
}

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// BackendClient calls the booking API at a configured base URL.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *BackendClient) InitializePayment(ctx context.Context, intent payment.Intent) (*InitializeResponse, error) {
	var resp InitializeResponse
	if err := c.doPost(ctx, c.baseURL+"/api/bookings/initialize-payment", intent, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) MobilePayment(ctx context.Context, intent payment.Intent) (*MobilePaymentResponse, error) {
	var resp MobilePaymentResponse
	if err := c.doPost(ctx, c.baseURL+"/api/bookings/mobile-payment", intent, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) VerifyPayment(ctx context.Context, reference string) (*VerifyResponse, error) {
	var resp VerifyResponse
	endpoint := fmt.Sprintf("%s/api/payments/verify/%s", c.baseURL, url.PathEscape(reference))
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBooking loads a booking, e.g. to pay the balance of a partial one.
func (c *BackendClient) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var wrap struct {
		Success bool           `json:"success"`
		Data    models.Booking `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/api/bookings/%s", c.baseURL, url.PathEscape(id))
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	return &wrap.Data, nil
}

func (c *BackendClient) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *BackendClient) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *BackendClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &body)
		return &HTTPError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
