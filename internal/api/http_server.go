package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"hostelpay/internal/config"
	"hostelpay/internal/metrics"
	"hostelpay/internal/models"
	"hostelpay/internal/payment"
	"hostelpay/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Payments is the part of the payment service exposed over HTTP and gRPC.
type Payments interface {
	InitializeCardPayment(ctx context.Context, intent payment.Intent) (*service.CardInit, error)
	InitiateMobilePayment(ctx context.Context, intent payment.Intent) (*service.MobileInit, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Verification, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error)
	SetPaymentStatus(ctx context.Context, reference, status, changedBy string) (*models.Booking, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer serves the checkout API and the admin endpoints.
type HTTPServer struct {
	cfg      *config.APIConfig
	payments Payments
	checks   []ReadinessCheck
	mux      *http.ServeMux
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
	now      func() time.Time
}

func NewHTTPServer(cfg *config.APIConfig, payments Payments, logger *zerolog.Logger, checks ...ReadinessCheck) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		payments: payments,
		checks:   checks,
		auth:     NewHTTPAuth(cfg),
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bookings/initialize-payment", srv.handleInitializePayment)
	mux.HandleFunc("POST /api/bookings/mobile-payment", srv.handleMobilePayment)
	mux.HandleFunc("GET /api/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("GET /api/payments/verify/{reference}", srv.handleVerifyPayment)
	mux.HandleFunc("POST /api/payments/webhook", srv.handleWebhook)

	mux.HandleFunc("GET /api/admin/payments", srv.handleListPayments)
	mux.HandleFunc("GET /api/admin/payments/export", srv.handleExportPayments)
	mux.HandleFunc("PATCH /api/admin/payments/{reference}/status", srv.handleSetPaymentStatus)

	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)
	srv.mux = mux

	handler := srv.loggingMiddleware(srv.corsMiddleware(srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Card initialization waits on the gateway.
		WriteTimeout: 30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	ready := true
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			ready = false
			continue
		}
		results[c.Name] = "ok"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"success": ready, "checks": results})
}

// HTTPAuth guards the admin endpoints with API keys and rate limits every
// API request per client.
type HTTPAuth struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	clients := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		clients[k.Key] = k
	}
	return &HTTPAuth{
		cfg:     cfg,
		clients: clients,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

type clientCtxKey struct{}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/admin/") {
			client, err := a.checkAuth(r)
			if err != nil {
				writeError(w, httpStatus(err), err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientCtxKey{}, client))
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	if !a.cfg.Auth.Enabled {
		return config.APIClientKey{Name: "admin"}, nil
	}

	apiKey := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault)))
	extra := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderExtra, apiExtraHeaderDefault)))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, fmt.Errorf("%w: missing api key headers", errUnauthenticated)
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, fmt.Errorf("%w: invalid api key", errUnauthenticated)
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, fmt.Errorf("%w: invalid extra header", errUnauthenticated)
	}

	if !hasPermission(client, requiredPermissionHTTP(r)) {
		return config.APIClientKey{}, errPermissionDenied
	}
	return client, nil
}

func requiredPermissionHTTP(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, "/api/admin/payments") {
		return ""
	}
	if r.Method == http.MethodGet {
		return permReadPayments
	}
	return permWritePayments
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if !a.limiter.allow(a.clientKey(r)) {
		return errRateLimited
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault))); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// changedBy names the admin client of an authenticated request.
func changedBy(ctx context.Context) string {
	client, ok := ctx.Value(clientCtxKey{}).(config.APIClientKey)
	if !ok || client.Name == "" {
		return "admin"
	}
	return "admin:" + client.Name
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{
		"Content-Type",
		headerOrDefault(s.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		headerOrDefault(s.cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
	}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.cfg.HTTP.AllowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.HTTP.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		_, endpoint := s.mux.Handler(r)
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		ev := s.log.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Success: false, Message: message})
}

// writeServiceError maps err onto a status code and logs what clients do not see.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, code, publicMessage(err, code))
}

func headerOrDefault(header, def string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" {
		return def
	}
	return header
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
