package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"hostelpay/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fastConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkout:\n  verify_delay: 10ms\n"), 0o644))
	return path
}

var cardArgs = []string{
	"--hostel", "h1", "--room", "r1",
	"--check-in", "2026-09-01", "--check-out", "2026-12-20", "--duration", "4",
	"--total", "2200", "--type", "partial",
	"--name", "Ama Mensah", "--email", "ama@example.com", "--phone", "0241234567",
}

func TestCardCommand_Popup(t *testing.T) {
	var got payment.Intent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bookings/initialize-payment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"access_code":"ac_9","reference":"HP-9","bookingId":"b-9"}`))
	}))
	t.Cleanup(srv.Close)

	args := append([]string{"card", "--config", fastConfig(t), "--backend", srv.URL}, cardArgs...)
	out, err := execute(t, "T-77\n", args...)
	require.NoError(t, err)

	assert.Contains(t, out, "https://checkout.paystack.com/ac_9")
	assert.Contains(t, out, "/bookings/success?reference=T-77&booking_id=b-9")
	assert.Equal(t, 1100.0, got.PaymentAmount)
	assert.Equal(t, "Partial Payment", got.PaymentType)
	assert.Equal(t, "2026-09-01", got.CheckInDate)
}

func TestCardCommand_Cancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"access_code":"ac_9","reference":"HP-9","bookingId":"b-9"}`))
	}))
	t.Cleanup(srv.Close)

	args := append([]string{"card", "--config", fastConfig(t), "--backend", srv.URL}, cardArgs...)
	out, err := execute(t, "cancel\n", args...)
	require.Error(t, err)
	assert.Contains(t, out, "[WARNING] Payment cancelled")
	assert.NotContains(t, out, "Booking confirmed")
}

func TestCardCommand_BalanceRedirect(t *testing.T) {
	var got payment.Intent
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "b-5", r.PathValue("id"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"b-5","hostelId":"h1","roomId":"r1",
			"totalAmount":2200,"amountPaid":1100,"paymentStatus":"partial",
			"customerInfo":{"fullName":"Ama Mensah","email":"ama@example.com","phone":"0241234567"}}}`))
	})
	mux.HandleFunc("POST /api/bookings/initialize-payment", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"authorization_url":"https://checkout.paystack.com/bal","reference":"HP-6","bookingId":"b-5"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	out, err := execute(t, "", "card", "--config", fastConfig(t), "--backend", srv.URL, "--booking", "b-5")
	require.NoError(t, err)
	assert.Contains(t, out, "Complete the payment at: https://checkout.paystack.com/bal")
	assert.Equal(t, "b-5", got.BookingID)
	assert.Equal(t, 1100.0, got.PaymentAmount)
}

func TestCardCommand_ValidationMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "", "card", "--config", fastConfig(t), "--backend", srv.URL, "--total", "2200")
	var verr *payment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, out, "[ERROR] validation failed")
	assert.Equal(t, int32(0), calls.Load())
}

func TestMobileCommand(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantErr    bool
		wantOutput string
	}{
		{name: "confirmed", status: "success", wantOutput: `"Amount": 1100`},
		{name: "pending", status: "pending", wantErr: true, wantOutput: "checkout verify R1"},
		{name: "failed", status: "failed", wantErr: true, wantOutput: "[ERROR] Mobile money payment failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verifies atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/bookings/mobile-payment", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"reference":"R1","bookingId":"b-1","message":"Approve the prompt on 0241234567"}`))
			})
			mux.HandleFunc("GET /api/payments/verify/R1", func(w http.ResponseWriter, _ *http.Request) {
				verifies.Add(1)
				_, _ = w.Write([]byte(`{"success":true,"data":{"status":"` + tt.status + `","reference":"R1"}}`))
			})
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			args := append([]string{"mobile", "--config", fastConfig(t), "--backend", srv.URL,
				"--network", "mtn", "--wallet", "0241234567"}, cardArgs...)
			out, err := execute(t, "", args...)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Contains(t, out, "[INFO] Approve the prompt on 0241234567")
			assert.Contains(t, out, tt.wantOutput)
			assert.Equal(t, int32(1), verifies.Load())
		})
	}
}

func TestVerifyCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payments/verify/HP-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"status":"success","reference":"HP-1","paymentStatus":"paid"}}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "", "verify", "HP-1", "--config", fastConfig(t), "--backend", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"paymentStatus": "paid"`)
}
