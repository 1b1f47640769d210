package service

import (
	"errors"
	"testing"

	"hostelpay/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramService(t *testing.T) {
	logger := zerolog.Nop()
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender, []int64{11, 22}, &logger)

	t.Run("SendMessage", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello" && msg.ChatID == 123
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendMessage(123, "hello")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("AlertsEveryAdminChat", func(t *testing.T) {
		bus := events.NewEventBus()
		svc.Attach(bus)

		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ParseMode == parseModeMarkdown && (msg.ChatID == 11 || msg.ChatID == 22)
		})).Return(tgbotapi.Message{}, nil).Twice()

		err := bus.PublishJSON(events.EventPaymentSucceeded, events.PaymentEventPayload{BookingID: "b1", PaymentStatus: "paid"})
		require.NoError(t, err)
		mockSender.AssertExpectations(t)

		// initiation is not alerted
		require.NoError(t, bus.PublishJSON(events.EventPaymentInitiated, events.PaymentEventPayload{BookingID: "b1"}))
		mockSender.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("SendFailureIsReported", func(t *testing.T) {
		failing := new(mockTelegramSender)
		failing.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found"))
		svc := NewTelegramService(failing, []int64{1}, &logger)

		ev, err := events.NewJSONEvent(events.EventPaymentFailed, events.PaymentEventPayload{BookingID: "b2"})
		require.NoError(t, err)
		assert.ErrorContains(t, svc.HandleEvent(&ev), "chat not found")
	})
}

func TestFormatPaymentAlert(t *testing.T) {
	text := FormatPaymentAlert(events.EventPaymentSucceeded, events.PaymentEventPayload{
		BookingID:      "b1",
		Reference:      "HP-1",
		HostelID:       "unity_hall",
		RoomID:         "r1",
		CustomerName:   "Ama Mensah",
		Method:         "mobile_money",
		Network:        "mtn",
		Amount:         1100,
		AmountPaid:     1100,
		TotalAmount:    2200,
		PaymentStatus:  "partial",
		PreviousStatus: "pending",
		ChangedBy:      "gateway",
	})

	assert.Contains(t, text, "Payment received")
	assert.Contains(t, text, `unity\_hall`)
	assert.Contains(t, text, `mobile\_money (mtn)`)
	assert.Contains(t, text, "Paid: 1100.00 of 2200.00")
	assert.Contains(t, text, "Status: pending → partial")
	assert.NotContains(t, text, "By:")

	refund := FormatPaymentAlert(events.EventPaymentRefunded, events.PaymentEventPayload{ChangedBy: "ops", PaymentStatus: "refunded"})
	assert.Contains(t, refund, "Booking refunded")
	assert.Contains(t, refund, "By: ops")
}
