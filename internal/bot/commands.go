package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hostelpay/internal/database"
	"hostelpay/internal/metrics"
	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

const helpText = `*Payment admin commands*
/payments [status] [limit] - latest payment attempts
/booking <id> - booking and its balance
/verify <reference> - re-check a payment with the gateway
/setstatus <reference> <success|failed|refunded> - manual override`

var errUsage = errors.New("usage")

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	changedBy := "telegram:" + strconv.FormatInt(msg.From.ID, 10)

	var (
		text string
		err  error
	)
	switch command {
	case "start", "help":
		text = helpText
	case "payments":
		text, err = b.listPayments(ctx, args)
	case "booking":
		text, err = b.showBooking(ctx, args)
	case "verify":
		text, err = b.verify(ctx, args)
	case "setstatus":
		text, err = b.setStatus(ctx, args, changedBy)
	default:
		text = "Unknown command. " + helpText
		command = "unknown"
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		text = errorText(command, err)
		zerolog.Ctx(ctx).Warn().Err(err).Str("command", command).Msg("Admin command failed")
	}
	metrics.IncBotCommand(command, outcome)
	b.reply(msg.Chat.ID, text)
}

func (b *Bot) listPayments(ctx context.Context, args []string) (string, error) {
	filter := models.PaymentFilter{Limit: defaultListLimit}
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n <= 0 {
				return "", errUsage
			}
			filter.Limit = min(n, maxListLimit)
			continue
		}
		filter.Status = models.AttemptStatus(strings.ToLower(arg))
	}

	entries, err := b.payments.ListPayments(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No payments found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Payments* (%d)\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "`%s` %s %s %s, booking `%s` is %s\n",
			e.Reference, e.Method, b.money(e.Amount), e.Status, e.BookingID, e.PaymentStatus)
	}
	return sb.String(), nil
}

func (b *Bot) showBooking(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errUsage
	}
	booking, err := b.payments.GetBooking(ctx, args[0])
	if err != nil {
		return "", err
	}
	return b.formatBooking(booking), nil
}

func (b *Bot) verify(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errUsage
	}
	v, err := b.payments.VerifyPayment(ctx, args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Payment `%s` is *%s* (%s), booking `%s` is %s.",
		v.Reference, v.Status, b.money(v.Amount), v.BookingID, v.PaymentStatus), nil
}

func (b *Bot) setStatus(ctx context.Context, args []string, changedBy string) (string, error) {
	if len(args) != 2 {
		return "", errUsage
	}
	booking, err := b.payments.SetPaymentStatus(ctx, args[0], strings.ToLower(args[1]), changedBy)
	if err != nil {
		return "", err
	}
	return "Updated.\n" + b.formatBooking(booking), nil
}

func (b *Bot) formatBooking(bk *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Booking* `%s`\n", bk.ID)
	fmt.Fprintf(&sb, "Room: %s/%s\n", bk.HostelID, bk.RoomID)
	if !bk.CheckInDate.IsZero() {
		fmt.Fprintf(&sb, "Stay: %s to %s\n", bk.CheckInDate.Format(models.DateLayout), bk.CheckOutDate.Format(models.DateLayout))
	}
	fmt.Fprintf(&sb, "Guest: %s, %s\n", bk.Customer.FullName, bk.Customer.Phone)
	fmt.Fprintf(&sb, "Status: *%s* (%s)\n", bk.PaymentStatus, bk.PaymentType)
	fmt.Fprintf(&sb, "Paid %s of %s, balance %s", b.money(bk.AmountPaid), b.money(bk.TotalAmount), b.money(bk.Balance()))
	return sb.String()
}

func (b *Bot) money(amount float64) string {
	return fmt.Sprintf("%s %.2f", b.currency, amount)
}

func errorText(command string, err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "Wrong arguments. " + helpText
	case errors.Is(err, database.ErrNotFound):
		return "Not found."
	case errors.Is(err, payment.ErrInvalidTransition), errors.Is(err, payment.ErrAlreadyPaid):
		return "Not allowed: " + err.Error()
	}
	return fmt.Sprintf("/%s failed: %v", command, err)
}
