package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hostelpay/internal/export"
	"hostelpay/internal/models"
	"hostelpay/internal/payment"
)

const signatureHeader = "x-paystack-signature"

type cardPaymentResponse struct {
	Success          bool   `json:"success"`
	AccessCode       string `json:"access_code,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Reference        string `json:"reference"`
	BookingID        string `json:"bookingId"`
	Message          string `json:"message,omitempty"`
}

type mobilePaymentResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	BookingID string `json:"bookingId"`
	Message   string `json:"message,omitempty"`
}

type verifyResponse struct {
	Success bool                 `json:"success"`
	Data    *models.Verification `json:"data"`
}

func (s *HTTPServer) handleInitializePayment(w http.ResponseWriter, r *http.Request) {
	intent, ok := decodeIntent(w, r)
	if !ok {
		return
	}

	init, err := s.payments.InitializeCardPayment(r.Context(), intent)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cardPaymentResponse{
		Success:          true,
		AccessCode:       init.AccessCode,
		AuthorizationURL: init.AuthorizationURL,
		Reference:        init.Reference,
		BookingID:        init.BookingID,
		Message:          "Payment initialized",
	})
}

func (s *HTTPServer) handleMobilePayment(w http.ResponseWriter, r *http.Request) {
	intent, ok := decodeIntent(w, r)
	if !ok {
		return
	}

	init, err := s.payments.InitiateMobilePayment(r.Context(), intent)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mobilePaymentResponse{
		Success:   true,
		Reference: init.Reference,
		BookingID: init.BookingID,
		Message:   init.Message,
	})
}

func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.PathValue("reference"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	v, err := s.payments.VerifyPayment(r.Context(), reference)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Success: true, Data: v})
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.payments.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.payments.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": booking})
}

func (s *HTTPServer) handleListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePaymentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.payments.ListPayments(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": entries, "count": len(entries)})
}

func (s *HTTPServer) handleExportPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePaymentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.payments.ListPayments(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteLedger(&buf, entries); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status := strings.ToLower(strings.TrimSpace(body.Status))
	if status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	booking, err := s.payments.SetPaymentStatus(r.Context(), r.PathValue("reference"), status, changedBy(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": booking})
}

func decodeIntent(w http.ResponseWriter, r *http.Request) (payment.Intent, bool) {
	var intent payment.Intent
	if err := decodeJSON(w, r, &intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return payment.Intent{}, false
	}
	return intent, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return decoder.Decode(dst)
}

func parsePaymentFilter(r *http.Request) (models.PaymentFilter, error) {
	q := r.URL.Query()
	filter := models.PaymentFilter{
		Status:    models.AttemptStatus(strings.TrimSpace(q.Get("status"))),
		BookingID: strings.TrimSpace(q.Get("booking_id")),
		Method:    strings.TrimSpace(q.Get("method")),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("invalid offset: %w", err)
	}
	return filter, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}
