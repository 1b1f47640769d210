package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	level   Level
	message string
}

type recorder struct {
	mu        sync.Mutex
	notes     []note
	paths     []string
	redirects []string
	// navErr is returned by Navigate and Redirect when set.
	navErr error
}

func (r *recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{level, message})
}

func (r *recorder) Navigate(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.navErr
}

func (r *recorder) Redirect(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, url)
	return r.navErr
}

func (r *recorder) last() note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return note{}
	}
	return r.notes[len(r.notes)-1]
}

// scriptedWidget fires the configured callback as soon as it is resumed.
type scriptedWidget struct {
	accessCode string
	fire       func(Callbacks)
}

func (w *scriptedWidget) ResumeTransaction(accessCode string, cb Callbacks) {
	w.accessCode = accessCode
	if w.fire != nil {
		go w.fire(cb)
	}
}

// backendStub serves the booking API and counts calls per route.
type backendStub struct {
	*httptest.Server
	initCalls   atomic.Int32
	mobileCalls atomic.Int32
	verifyCalls atomic.Int32
	verifyPaths chan string
}

func newBackendStub(t *testing.T, initBody, mobileBody, verifyBody any) *backendStub {
	t.Helper()
	stub := &backendStub{verifyPaths: make(chan string, 10)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bookings/initialize-payment", func(w http.ResponseWriter, r *http.Request) {
		stub.initCalls.Add(1)
		_ = json.NewEncoder(w).Encode(initBody)
	})
	mux.HandleFunc("POST /api/bookings/mobile-payment", func(w http.ResponseWriter, r *http.Request) {
		stub.mobileCalls.Add(1)
		_ = json.NewEncoder(w).Encode(mobileBody)
	})
	mux.HandleFunc("GET /api/payments/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		stub.verifyCalls.Add(1)
		stub.verifyPaths <- r.URL.Path
		_ = json.NewEncoder(w).Encode(verifyBody)
	})
	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

func (s *backendStub) calls() int32 {
	return s.initCalls.Load() + s.mobileCalls.Load() + s.verifyCalls.Load()
}

func formInput(selector string) payment.IntentInput {
	return payment.IntentInput{
		HostelID:     "h1",
		RoomID:       "r1",
		CheckInDate:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CheckOutDate: time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		Duration:     4,
		TotalAmount:  2200,
		Selector:     selector,
		Customer:     models.CustomerInfo{FullName: "Ama Mensah", Email: "ama@example.com", Phone: "0241234567"},
	}
}

func TestCardFlow_PopupSuccessNavigates(t *testing.T) {
	stub := newBackendStub(t, map[string]any{
		"success": true, "access_code": "ac_1", "reference": "HP-1", "bookingId": "b-1",
	}, nil, nil)
	rec := &recorder{}
	widget := &scriptedWidget{fire: func(cb Callbacks) { cb.OnSuccess("T-99") }}
	flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), widget, rec, rec, nil)

	var states []CardState
	flow.Observe(func(_, to CardState) { states = append(states, to) })

	res, err := flow.Submit(context.Background(), formInput(payment.SelectPartial))
	require.NoError(t, err)

	assert.Equal(t, "ac_1", widget.accessCode)
	assert.Equal(t, "/bookings/success?reference=T-99&booking_id=b-1", res.SuccessPath)
	require.Len(t, rec.paths, 1)
	assert.Contains(t, rec.paths[0], "reference=T-99")
	assert.Contains(t, rec.paths[0], "booking_id=b-1")
	assert.Equal(t, CardSuccess, flow.State())
	assert.False(t, flow.Loading())
	assert.Equal(t, []CardState{CardSubmitting, CardAwaitingGateway, CardSuccess}, states)
}

func TestCardFlow_RedirectOnly(t *testing.T) {
	stub := newBackendStub(t, map[string]any{
		"success": true, "authorization_url": "https://checkout.paystack.com/xyz", "reference": "HP-2", "bookingId": "b-2",
	}, nil, nil)
	rec := &recorder{}
	widget := &scriptedWidget{}
	flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), widget, rec, rec, nil)

	res, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://checkout.paystack.com/xyz"}, rec.redirects)
	assert.Equal(t, "https://checkout.paystack.com/xyz", res.RedirectURL)
	assert.Empty(t, widget.accessCode)
	assert.Empty(t, rec.paths)
	assert.Equal(t, int32(1), stub.calls())
	assert.Equal(t, CardRedirected, flow.State())
}

func TestCardFlow_NavigationFailureReturnsToIdle(t *testing.T) {
	blocked := errors.New("browser blocked navigation")

	t.Run("redirect", func(t *testing.T) {
		stub := newBackendStub(t, map[string]any{
			"success": true, "authorization_url": "https://checkout.paystack.com/xyz", "reference": "HP-2", "bookingId": "b-2",
		}, nil, nil)
		rec := &recorder{navErr: blocked}
		flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		require.ErrorIs(t, err, blocked)
		var ierr *InitiationError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, LevelError, rec.last().level)
		assert.Equal(t, "Could not open the payment page", rec.last().message)
		assert.Equal(t, CardIdle, flow.State())
		assert.False(t, flow.Loading())

		rec.navErr = nil
		res, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.paystack.com/xyz", res.RedirectURL)
		assert.Equal(t, CardRedirected, flow.State())
		assert.Equal(t, int32(2), stub.calls())
	})

	t.Run("success page", func(t *testing.T) {
		stub := newBackendStub(t, map[string]any{
			"success": true, "access_code": "ac_1", "reference": "HP-1", "bookingId": "b-1",
		}, nil, nil)
		rec := &recorder{navErr: blocked}
		widget := &scriptedWidget{fire: func(cb Callbacks) { cb.OnSuccess("T-1") }}
		flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), widget, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		require.ErrorIs(t, err, blocked)
		assert.Equal(t, LevelError, rec.last().level)
		assert.Contains(t, rec.last().message, "T-1")
		assert.Equal(t, CardIdle, flow.State())
		assert.Equal(t, []string{SuccessPath("T-1", "b-1")}, rec.paths)
	})
}

func TestCardFlow_ValidationMakesNoCall(t *testing.T) {
	for _, blank := range []string{"fullName", "email", "phone"} {
		t.Run(blank, func(t *testing.T) {
			stub := newBackendStub(t, map[string]any{"success": true}, nil, nil)
			rec := &recorder{}
			flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

			in := formInput(payment.SelectFull)
			switch blank {
			case "fullName":
				in.Customer.FullName = " "
			case "email":
				in.Customer.Email = ""
			case "phone":
				in.Customer.Phone = ""
			}

			_, err := flow.Submit(context.Background(), in)
			var verr *payment.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, blank)
			assert.Equal(t, int32(0), stub.calls())
			assert.Equal(t, LevelError, rec.last().level)
			assert.Equal(t, CardIdle, flow.State())
		})
	}
}

func TestCardFlow_WidgetOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		fire    func(Callbacks)
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "cancel",
			fire: func(cb Callbacks) { cb.OnCancel() },
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrGatewayCancelled)
			},
		},
		{
			name: "error",
			fire: func(cb Callbacks) { cb.OnError(errors.New("card declined")) },
			wantErr: func(t *testing.T, err error) {
				var gerr *GatewayError
				require.ErrorAs(t, err, &gerr)
				assert.EqualError(t, gerr.Err, "card declined")
			},
		},
		{
			name: "first callback wins",
			fire: func(cb Callbacks) {
				cb.OnCancel()
				cb.OnSuccess("late")
			},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrGatewayCancelled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newBackendStub(t, map[string]any{
				"success": true, "access_code": "ac_1", "reference": "HP-1", "bookingId": "b-1",
			}, nil, nil)
			rec := &recorder{}
			flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{fire: tt.fire}, rec, rec, nil)

			var states []CardState
			flow.Observe(func(_, to CardState) { states = append(states, to) })

			_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
			tt.wantErr(t, err)
			assert.Equal(t, CardIdle, flow.State())
			assert.False(t, flow.Loading())
			assert.Empty(t, rec.paths)
			assert.Len(t, states, 4)
			assert.Equal(t, CardIdle, states[len(states)-1])
		})
	}
}

func TestCardFlow_ContextCancelWhileWaiting(t *testing.T) {
	stub := newBackendStub(t, map[string]any{
		"success": true, "access_code": "ac_1", "reference": "HP-1", "bookingId": "b-1",
	}, nil, nil)
	rec := &recorder{}
	flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := flow.Submit(ctx, formInput(payment.SelectFull))
	assert.ErrorIs(t, err, ErrGatewayCancelled)
	assert.Equal(t, CardIdle, flow.State())
}

func TestCardFlow_InitiationFailures(t *testing.T) {
	t.Run("success false", func(t *testing.T) {
		stub := newBackendStub(t, map[string]any{"success": false, "message": "Room is fully booked"}, nil, nil)
		rec := &recorder{}
		flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		var ierr *InitiationError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, "Room is fully booked", ierr.Message)
		assert.Equal(t, note{LevelError, "Room is fully booked"}, rec.last())
		assert.Equal(t, CardIdle, flow.State())
		assert.False(t, flow.Loading())
	})

	t.Run("http error keeps server message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"message":"booking is already paid"}`))
		}))
		t.Cleanup(srv.Close)
		rec := &recorder{}
		flow := NewCardFlow(NewBackendClient(srv.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		var herr *HTTPError
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, http.StatusConflict, herr.StatusCode)
		assert.Equal(t, "booking is already paid", rec.last().message)
	})

	t.Run("network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		rec := &recorder{}
		flow := NewCardFlow(NewBackendClient(url, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		var ierr *InitiationError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, LevelError, rec.last().level)
		assert.False(t, flow.Loading())
		assert.Equal(t, CardIdle, flow.State())

		// The customer may retry from idle.
		_, err = flow.Submit(context.Background(), formInput(payment.SelectFull))
		require.ErrorAs(t, err, &ierr)
	})

	t.Run("bad json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}))
		t.Cleanup(srv.Close)
		rec := &recorder{}
		flow := NewCardFlow(NewBackendClient(srv.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		var ierr *InitiationError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, "Failed to initialize payment", ierr.Message)
	})

	t.Run("no handle", func(t *testing.T) {
		stub := newBackendStub(t, map[string]any{"success": true, "reference": "HP-1"}, nil, nil)
		rec := &recorder{}
		flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), &scriptedWidget{}, rec, rec, nil)

		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		assert.ErrorIs(t, err, ErrNoGatewayHandle)
		assert.Equal(t, CardIdle, flow.State())
	})
}

func TestCardFlow_SubmitIntentSendsPayload(t *testing.T) {
	var got payment.Intent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"authorization_url":"https://pay.example/x","reference":"R","bookingId":"b-7"}`))
	}))
	t.Cleanup(srv.Close)

	rec := &recorder{}
	flow := NewCardFlow(NewBackendClient(srv.URL+"/", time.Second), &scriptedWidget{}, rec, rec, nil)
	balance, err := payment.BalanceIntent(&models.Booking{
		ID: "b-7", HostelID: "h1", RoomID: "r1", TotalAmount: 2200, AmountPaid: 1100,
		PaymentStatus: models.PaymentPartial,
		Customer:      models.CustomerInfo{FullName: "Ama Mensah", Email: "ama@example.com", Phone: "0241234567"},
	})
	require.NoError(t, err)

	_, err = flow.SubmitIntent(context.Background(), balance)
	require.NoError(t, err)
	assert.Equal(t, "b-7", got.BookingID)
	assert.Equal(t, 1100.0, got.PaymentAmount)
}

func TestCardFlow_NoDoubleSubmit(t *testing.T) {
	stub := newBackendStub(t, map[string]any{
		"success": true, "access_code": "ac_1", "reference": "HP-1", "bookingId": "b-1",
	}, nil, nil)
	rec := &recorder{}
	release := make(chan struct{})
	widget := &scriptedWidget{fire: func(cb Callbacks) {
		<-release
		cb.OnSuccess("HP-1")
	}}
	flow := NewCardFlow(NewBackendClient(stub.URL, time.Second), widget, rec, rec, nil)

	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
		done <- err
	}()

	require.Eventually(t, func() bool { return flow.State() == CardAwaitingGateway }, time.Second, 5*time.Millisecond)
	assert.True(t, flow.Loading())

	_, err := flow.Submit(context.Background(), formInput(payment.SelectFull))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), stub.initCalls.Load())
}

// instantAfter fires at once and records the requested delay.
func instantAfter(got *time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*got = d
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
}

var mobileInput = payment.MobileInput{Network: models.NetworkMTN, PhoneNumber: "0241234567"}

func TestMobileFlow_ConfirmedAfterSingleVerify(t *testing.T) {
	stub := newBackendStub(t, nil,
		map[string]any{"success": true, "reference": "R1", "bookingId": "b-1"},
		map[string]any{"success": true, "data": map[string]any{"status": "success", "reference": "R1"}},
	)
	rec := &recorder{}
	var results []MobileResult
	flow := NewMobileFlow(NewBackendClient(stub.URL, time.Second), rec, func(r MobileResult) {
		results = append(results, r)
	}, 0, nil)
	var delay time.Duration
	flow.after = instantAfter(&delay)

	var states []MobileState
	flow.Observe(func(_, to MobileState) { states = append(states, to) })

	res, err := flow.Submit(context.Background(), formInput(payment.SelectPartial), mobileInput)
	require.NoError(t, err)

	assert.Equal(t, 5000*time.Millisecond, delay)
	assert.Equal(t, int32(1), stub.verifyCalls.Load())
	assert.Equal(t, "/api/payments/verify/R1", <-stub.verifyPaths)

	require.Len(t, results, 1)
	assert.Equal(t, MobileResult{Method: models.MethodMobileMoney, Network: models.NetworkMTN, Amount: 1100, Reference: "R1"}, results[0])
	assert.Equal(t, results[0], *res)
	assert.Equal(t, []MobileState{MobileSubmitting, MobileAwaitingPrompt, MobilePolling, MobileConfirmed}, states)
	assert.False(t, flow.Loading())
	assert.Equal(t, note{LevelInfo, defaultPromptMessage}, rec.notes[0])
}

func TestMobileFlow_NotConfirmed(t *testing.T) {
	tests := []struct {
		name      string
		verify    map[string]any
		wantState MobileState
		check     func(t *testing.T, err error)
	}{
		{
			name:      "pending",
			verify:    map[string]any{"success": true, "data": map[string]any{"status": "pending"}},
			wantState: MobileStillPending,
			check: func(t *testing.T, err error) {
				var inc *VerificationInconclusive
				require.ErrorAs(t, err, &inc)
				assert.Equal(t, "R1", inc.Reference)
				assert.Equal(t, "pending", inc.Status)
			},
		},
		{
			name:      "unsuccessful response",
			verify:    map[string]any{"success": false, "message": "not found"},
			wantState: MobileStillPending,
			check: func(t *testing.T, err error) {
				var inc *VerificationInconclusive
				assert.ErrorAs(t, err, &inc)
			},
		},
		{
			name:      "failed",
			verify:    map[string]any{"success": true, "data": map[string]any{"status": "failed"}},
			wantState: MobileError,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrPaymentFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newBackendStub(t, nil, map[string]any{"success": true, "reference": "R1"}, tt.verify)
			rec := &recorder{}
			called := false
			flow := NewMobileFlow(NewBackendClient(stub.URL, time.Second), rec, func(MobileResult) { called = true }, 0, nil)
			var delay time.Duration
			flow.after = instantAfter(&delay)

			_, err := flow.Submit(context.Background(), formInput(payment.SelectFull), mobileInput)
			tt.check(t, err)

			assert.False(t, called)
			assert.False(t, flow.Loading())
			assert.Equal(t, tt.wantState, flow.State())
			assert.Equal(t, int32(1), stub.verifyCalls.Load())

			require.NoError(t, flow.Reset())
			assert.Equal(t, MobileIdle, flow.State())
		})
	}
}

func TestMobileFlow_VerifyTransportErrorIsInconclusive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"success":true,"reference":"R1"}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	rec := &recorder{}
	flow := NewMobileFlow(NewBackendClient(srv.URL, time.Second), rec, nil, time.Second, nil)
	var delay time.Duration
	flow.after = instantAfter(&delay)

	_, err := flow.Submit(context.Background(), formInput(payment.SelectFull), mobileInput)
	var inc *VerificationInconclusive
	require.ErrorAs(t, err, &inc)
	var herr *HTTPError
	assert.ErrorAs(t, err, &herr)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, MobileStillPending, flow.State())
	assert.Equal(t, LevelWarning, rec.last().level)
}

func TestMobileFlow_ValidationMakesNoCall(t *testing.T) {
	stub := newBackendStub(t, nil, map[string]any{"success": true, "reference": "R1"}, nil)
	rec := &recorder{}
	flow := NewMobileFlow(NewBackendClient(stub.URL, time.Second), rec, nil, 0, nil)

	_, err := flow.Submit(context.Background(), formInput(payment.SelectFull), payment.MobileInput{Network: "glo"})
	var verr *payment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"network", "phoneNumber"}, verr.Fields)

	in := formInput(payment.SelectFull)
	in.Customer.Email = ""
	_, err = flow.Submit(context.Background(), in, mobileInput)
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, int32(0), stub.calls())
	assert.Equal(t, MobileIdle, flow.State())
}

func TestMobileFlow_InitiationError(t *testing.T) {
	stub := newBackendStub(t, nil, map[string]any{"success": false, "message": "unsupported mobile money network"}, nil)
	rec := &recorder{}
	flow := NewMobileFlow(NewBackendClient(stub.URL, time.Second), rec, nil, 0, nil)

	_, err := flow.Submit(context.Background(), formInput(payment.SelectFull), mobileInput)
	var ierr *InitiationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, note{LevelError, "unsupported mobile money network"}, rec.last())
	assert.Equal(t, MobileIdle, flow.State())
	assert.False(t, flow.Loading())
	assert.Equal(t, int32(0), stub.verifyCalls.Load())
}

func TestMobileFlow_CancelDuringDelay(t *testing.T) {
	stub := newBackendStub(t, nil, map[string]any{"success": true, "reference": "R1"}, nil)
	rec := &recorder{}
	flow := NewMobileFlow(NewBackendClient(stub.URL, time.Second), rec, nil, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := flow.Submit(ctx, formInput(payment.SelectFull), mobileInput)

	var inc *VerificationInconclusive
	require.ErrorAs(t, err, &inc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), stub.verifyCalls.Load())
	assert.Equal(t, MobileStillPending, flow.State())
}

func TestHandleFrom(t *testing.T) {
	h, err := HandleFrom(&InitializeResponse{AccessCode: "ac", AuthorizationURL: "https://x"})
	require.NoError(t, err)
	assert.Equal(t, Popup{AccessCode: "ac"}, h)

	h, err = HandleFrom(&InitializeResponse{AuthorizationURL: "https://x"})
	require.NoError(t, err)
	assert.Equal(t, Redirect{URL: "https://x"}, h)

	_, err = HandleFrom(&InitializeResponse{})
	assert.ErrorIs(t, err, ErrNoGatewayHandle)
}

func TestSuccessPath(t *testing.T) {
	assert.Equal(t, "/bookings/success?reference=HP-1&booking_id=b-1", SuccessPath("HP-1", "b-1"))
	assert.Equal(t, "/bookings/success?reference=a%26b&booking_id=c+d", SuccessPath("a&b", "c d"))
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	m := newMachine(CardIdle, cardTransitions)

	err := m.to(CardSuccess)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, CardIdle, m.get())

	require.NoError(t, m.to(CardSubmitting))
	require.NoError(t, m.to(CardRedirected))
	assert.ErrorIs(t, m.to(CardIdle), ErrIllegalTransition)

	mm := newMachine(MobileIdle, mobileTransitions)
	require.NoError(t, mm.to(MobileSubmitting))
	require.NoError(t, mm.to(MobileAwaitingPrompt))
	require.NoError(t, mm.to(MobilePolling))
	require.NoError(t, mm.to(MobileConfirmed))
	assert.ErrorIs(t, mm.to(MobileIdle), ErrIllegalTransition)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_gateway", CardAwaitingGateway.String())
	assert.Equal(t, "awaiting_carrier_prompt", MobileAwaitingPrompt.String())
	assert.Equal(t, "still_pending", MobileStillPending.String())
	assert.Equal(t, "card_state(42)", CardState(42).String())
}
