package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "sk_test", "GHS", "http://localhost:3000/bookings/callback", time.Second)
}

func TestInitializeTransaction(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"HP-1"}}`))
	})

	auth, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:     "ama@example.com",
		Amount:    1100.5,
		Reference: "HP-1",
		Metadata:  map[string]string{"booking_id": "b1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", auth.AccessCode)
	assert.Equal(t, "https://checkout.paystack.com/abc", auth.AuthorizationURL)
	assert.Equal(t, "HP-1", auth.Reference)

	assert.Equal(t, float64(110050), got["amount"])
	assert.Equal(t, "GHS", got["currency"])
	assert.Equal(t, "http://localhost:3000/bookings/callback", got["callback_url"])
	assert.Equal(t, map[string]any{"booking_id": "b1"}, got["metadata"])
}

func TestInitializeTransactionRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid email"}`))
	})

	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{Reference: "HP-1"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Invalid email")
}

func TestGatewayUnavailable(t *testing.T) {
	t.Run("ServerError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.VerifyTransaction(context.Background(), "HP-1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("GarbageBody", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})
		_, err := client.VerifyTransaction(context.Background(), "HP-1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Transport", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "sk", "", "", 200*time.Millisecond)
		_, err := client.VerifyTransaction(context.Background(), "HP-1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestChargeMobileMoney(t *testing.T) {
	var got struct {
		Amount      int64             `json:"amount"`
		MobileMoney map[string]string `json:"mobile_money"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charge", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"Charge attempted","data":{"reference":"HP-2","status":"send_otp","display_text":"Approve on your phone"}}`))
	})

	res, err := client.ChargeMobileMoney(context.Background(), ChargeRequest{
		Email:     "ama@example.com",
		Amount:    900,
		Reference: "HP-2",
		Network:   "vodafone",
		Phone:     "0201234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "HP-2", res.Reference)
	assert.Equal(t, int64(90000), got.Amount)
	assert.Equal(t, "vod", got.MobileMoney["provider"])
	assert.Equal(t, "0201234567", got.MobileMoney["phone"])
}

func TestChargeMobileMoneyUnsupportedNetwork(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.ChargeMobileMoney(context.Background(), ChargeRequest{Network: "glo"})
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestVerifyTransaction(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		want          string
	}{
		{"success", StatusSuccess},
		{"failed", StatusFailed},
		{"reversed", StatusFailed},
		{"abandoned", StatusFailed},
		{"ongoing", StatusPending},
		{"pending", StatusPending},
		{"send_otp", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/HP-9", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status":  true,
					"message": "Verification successful",
					"data": map[string]any{
						"reference": "HP-9",
						"status":    tt.gatewayStatus,
						"amount":    220000,
						"currency":  "GHS",
						"paid_at":   "2026-09-01T10:00:00Z",
					},
				})
			})

			v, err := client.VerifyTransaction(context.Background(), "HP-9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.gatewayStatus, v.GatewayStatus)
			assert.Equal(t, 2200.0, v.Amount)
			require.NotNil(t, v.PaidAt)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(110000), ToMinorUnits(1100))
	assert.Equal(t, int64(67525), ToMinorUnits(675.25))
	assert.Equal(t, int64(30), ToMinorUnits(0.1+0.2))
	assert.Equal(t, 675.25, FromMinorUnits(67525))
}

func TestProviderCode(t *testing.T) {
	for network, want := range map[string]string{"mtn": "mtn", "vodafone": "vod", "airteltigo": "atl"} {
		got, err := ProviderCode(network)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ProviderCode("")
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}
