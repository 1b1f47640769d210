package service

import (
	"errors"
	"fmt"
	"strings"

	"hostelpay/internal/domain"
	"hostelpay/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const parseModeMarkdown = "Markdown"

// TelegramService posts payment alerts to the admin chats.
type TelegramService struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramService(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramService {
	return &TelegramService{
		bot:     bot,
		chatIDs: chatIDs,
		logger:  logger,
	}
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return s.bot.Send(msg)
}

func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseModeMarkdown
	return s.bot.Send(msg)
}

// Attach subscribes the alerts to the settled-payment events of bus.
func (s *TelegramService) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventPaymentSucceeded, s.HandleEvent)
	bus.Subscribe(events.EventPaymentFailed, s.HandleEvent)
	bus.Subscribe(events.EventPaymentRefunded, s.HandleEvent)
}

func (s *TelegramService) HandleEvent(event *events.Event) error {
	var payload events.PaymentEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}

	text := FormatPaymentAlert(event.Type, payload)
	var errs []error
	for _, chatID := range s.chatIDs {
		if _, err := s.SendMarkdown(chatID, text); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Str("booking_id", payload.BookingID).Msg("telegram alert failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatPaymentAlert renders a Markdown alert for a payment event.
func FormatPaymentAlert(eventType string, p events.PaymentEventPayload) string {
	var title string
	switch eventType {
	case events.EventPaymentSucceeded:
		title = "✅ *Payment received*"
	case events.EventPaymentFailed:
		title = "❌ *Payment failed*"
	case events.EventPaymentRefunded:
		title = "↩️ *Booking refunded*"
	default:
		title = "ℹ️ *Payment update*"
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "Booking: `%s`\n", p.BookingID)
	fmt.Fprintf(&b, "Reference: `%s`\n", p.Reference)
	fmt.Fprintf(&b, "Room: %s / %s\n", escapeMarkdown(p.HostelID), escapeMarkdown(p.RoomID))
	fmt.Fprintf(&b, "Customer: %s\n", escapeMarkdown(p.CustomerName))
	method := p.Method
	if p.Network != "" {
		method += " (" + p.Network + ")"
	}
	fmt.Fprintf(&b, "Method: %s\n", escapeMarkdown(method))
	fmt.Fprintf(&b, "Amount: %.2f\n", p.Amount)
	fmt.Fprintf(&b, "Paid: %.2f of %.2f\n", p.AmountPaid, p.TotalAmount)
	if p.PreviousStatus != "" && p.PreviousStatus != p.PaymentStatus {
		fmt.Fprintf(&b, "Status: %s → %s\n", p.PreviousStatus, p.PaymentStatus)
	} else {
		fmt.Fprintf(&b, "Status: %s\n", p.PaymentStatus)
	}
	if p.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", escapeMarkdown(p.Reason))
	}
	if p.ChangedBy != "" && p.ChangedBy != "gateway" {
		fmt.Fprintf(&b, "By: %s\n", escapeMarkdown(p.ChangedBy))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
