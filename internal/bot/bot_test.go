package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"hostelpay/internal/database"
	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID = int64(42)

type mockTelegram struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func (m *mockTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTelegram) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockTelegram) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

type fakePayments struct {
	filter    models.PaymentFilter
	changedBy string
	status    string
	panicOn   string
}

var partialBooking = &models.Booking{
	ID: "b-1", HostelID: "h1", RoomID: "r1",
	CheckInDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	CheckOutDate:  time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
	TotalAmount:   2200,
	AmountPaid:    1100,
	PaymentType:   models.LabelPartialPayment,
	PaymentStatus: models.PaymentPartial,
	Customer:      models.CustomerInfo{FullName: "Ama Mensah", Phone: "0241234567"},
}

func (f *fakePayments) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	if id == f.panicOn {
		panic("boom")
	}
	if id != partialBooking.ID {
		return nil, database.ErrNotFound
	}
	return partialBooking, nil
}

func (f *fakePayments) ListPayments(_ context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error) {
	f.filter = filter
	return []*models.LedgerEntry{{
		PaymentAttempt: models.PaymentAttempt{
			Reference: "HP-1", BookingID: "b-1", Method: models.MethodCard, Amount: 1100, Status: models.AttemptSuccess,
		},
		PaymentStatus: models.PaymentPartial,
	}}, nil
}

func (f *fakePayments) VerifyPayment(_ context.Context, reference string) (*models.Verification, error) {
	return &models.Verification{
		Status: models.VerifySuccess, Reference: reference, Amount: 1100, BookingID: "b-1", PaymentStatus: models.PaymentPartial,
	}, nil
}

func (f *fakePayments) SetPaymentStatus(_ context.Context, reference, status, changedBy string) (*models.Booking, error) {
	f.changedBy = changedBy
	f.status = status
	if status == "refunded" {
		return nil, fmt.Errorf("%w: refund of pending booking", payment.ErrInvalidTransition)
	}
	return partialBooking, nil
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

// run feeds updates through Start and returns the replies.
func run(t *testing.T, payments *fakePayments, updates ...tgbotapi.Update) []string {
	t.Helper()
	tg := &mockTelegram{updates: make(chan tgbotapi.Update, len(updates))}
	for _, u := range updates {
		tg.updates <- u
	}
	close(tg.updates)

	b := NewBot(tg, payments, []int64{adminID}, "GHS", nil)
	done := make(chan struct{})
	go func() {
		b.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after updates channel closed")
	}
	return tg.texts()
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"help", "/help", []string{"/payments", "/setstatus"}},
		{"payments", "/payments", []string{"`HP-1` card GHS 1100.00 success", "booking `b-1` is partial"}},
		{"booking", "/booking b-1", []string{"Room: h1/r1", "Stay: 2026-09-01 to 2026-12-20", "balance GHS 1100.00"}},
		{"booking not found", "/booking nope", []string{"Not found."}},
		{"booking usage", "/booking", []string{"Wrong arguments."}},
		{"verify", "/verify HP-1", []string{"Payment `HP-1` is *success*"}},
		{"setstatus", "/setstatus HP-1 SUCCESS", []string{"Updated.", "Status: *partial*"}},
		{"setstatus not allowed", "/setstatus HP-1 refunded", []string{"Not allowed:"}},
		{"unknown", "/nope", []string{"Unknown command."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := run(t, &fakePayments{}, commandUpdate(adminID, tt.command))
			require.Len(t, replies, 1)
			for _, w := range tt.want {
				assert.Contains(t, replies[0], w)
			}
		})
	}
}

func TestPaymentsFilter(t *testing.T) {
	p := &fakePayments{}
	run(t, p, commandUpdate(adminID, "/payments PENDING 500"))
	assert.Equal(t, models.AttemptPending, p.filter.Status)
	assert.Equal(t, maxListLimit, p.filter.Limit)

	replies := run(t, p, commandUpdate(adminID, "/payments 0"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Wrong arguments.")
}

func TestSetStatusRecordsAdmin(t *testing.T) {
	p := &fakePayments{}
	run(t, p, commandUpdate(adminID, "/setstatus HP-1 Failed"))
	assert.Equal(t, "telegram:42", p.changedBy)
	assert.Equal(t, "failed", p.status)
}

func TestNonAdminIgnored(t *testing.T) {
	replies := run(t, &fakePayments{},
		commandUpdate(7, "/payments"),
		tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: adminID}, Chat: &tgbotapi.Chat{ID: adminID}, Text: "hello"}},
		tgbotapi.Update{},
	)
	assert.Empty(t, replies)
}

func TestPanicRecovered(t *testing.T) {
	replies := run(t, &fakePayments{panicOn: "bad"},
		commandUpdate(adminID, "/booking bad"),
		commandUpdate(adminID, "/booking b-1"),
	)
	require.Len(t, replies, 2)
	assert.Equal(t, "Internal error, see logs.", replies[0])
	assert.Contains(t, replies[1], "*Booking* `b-1`")
}

func TestStartStopsOnContext(t *testing.T) {
	tg := &mockTelegram{updates: make(chan tgbotapi.Update)}
	b := NewBot(tg, &fakePayments{}, []int64{adminID}, "GHS", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, tg.stopped)
}
