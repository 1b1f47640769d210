package bot

import (
	"context"
	"slices"
	"time"

	"hostelpay/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TelegramAPI is the part of tgbotapi.BotAPI the bot uses.
type TelegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// Payments is the admin view of the payment service.
type Payments interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Verification, error)
	SetPaymentStatus(ctx context.Context, reference, status, changedBy string) (*models.Booking, error)
}

// Bot answers payment commands in the admin chats. Messages from any other
// user are ignored.
type Bot struct {
	api      TelegramAPI
	payments Payments
	admins   []int64
	currency string
	logger   *zerolog.Logger
}

func NewBot(api TelegramAPI, payments Payments, admins []int64, currency string, logger *zerolog.Logger) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Bot{
		api:      api,
		payments: payments,
		admins:   admins,
		currency: currency,
		logger:   logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Int("admins", len(b.admins)).Msg("Admin bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Admin bot stopping...")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Int64("user_id", msg.From.ID).Logger()
	updateCtx = l.WithContext(updateCtx)

	if !b.isAdmin(msg.From.ID) {
		l.Warn().Str("command", msg.Command()).Msg("Command from non-admin ignored")
		return
	}

	b.withRecovery(&l, msg.Chat.ID, func() {
		b.handleCommand(updateCtx, msg)
	})
}

func (b *Bot) isAdmin(userID int64) bool {
	return slices.Contains(b.admins, userID)
}

func (b *Bot) withRecovery(l *zerolog.Logger, chatID int64, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
			b.reply(chatID, "Internal error, see logs.")
		}
	}()
	handler()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}
