package receipt

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"hostelpay/internal/config"
	"hostelpay/internal/events"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer emails a PDF receipt for every verified payment.
type Mailer struct {
	from     string
	currency string
	dialer   dialer
	logger   *zerolog.Logger
}

func NewMailer(cfg config.EmailConfig, currency string, logger *zerolog.Logger) *Mailer {
	return &Mailer{
		from:     cfg.From,
		currency: currency,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger:   logger,
	}
}

// Attach subscribes the mailer to successful payments on bus.
func (m *Mailer) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventPaymentSucceeded, m.HandleEvent)
}

func (m *Mailer) HandleEvent(event *events.Event) error {
	var p events.PaymentEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	if strings.TrimSpace(p.CustomerEmail) == "" {
		return nil
	}
	if err := m.Send(p); err != nil {
		m.logger.Error().Err(err).Str("reference", p.Reference).Msg("Failed to email receipt")
		return err
	}
	m.logger.Info().Str("reference", p.Reference).Str("to", p.CustomerEmail).Msg("Receipt emailed")
	return nil
}

// Send renders the receipt of p and mails it to the customer.
func (m *Mailer) Send(p events.PaymentEventPayload) error {
	pdf, err := Render(p, m.currency)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", p.CustomerEmail)
	msg.SetHeader("Subject", "Payment receipt "+p.Reference)
	msg.SetBody("text/html", emailBody(p, m.currency))
	msg.Attach("receipt_"+p.Reference+".pdf", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(pdf)
		return err
	}))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Render builds the PDF receipt of a verified payment.
func Render(p events.PaymentEventPayload, currency string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment receipt "+p.Reference, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Payment Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	rows := [][2]string{
		{"Reference", p.Reference},
		{"Booking", p.BookingID},
		{"Customer", p.CustomerName},
		{"Hostel / Room", p.HostelID + " / " + p.RoomID},
		{"Payment type", p.PaymentType},
		{"Method", methodLabel(p)},
		{"Amount paid now", money(currency, p.Amount)},
		{"Total paid", money(currency, p.AmountPaid)},
		{"Booking total", money(currency, p.TotalAmount)},
		{"Balance", money(currency, balance(p))},
		{"Status", p.PaymentStatus},
		{"Date", p.OccurredAt.UTC().Format("2006-01-02 15:04 UTC")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(50, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error generating receipt PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func emailBody(p events.PaymentEventPayload, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %s,</p>", p.CustomerName)
	fmt.Fprintf(&b, "<p>We received %s for booking %s.</p>", money(currency, p.Amount), p.BookingID)
	if bal := balance(p); bal > 0 {
		fmt.Fprintf(&b, "<p>Outstanding balance: %s.</p>", money(currency, bal))
	} else {
		b.WriteString("<p>Your booking is fully paid.</p>")
	}
	b.WriteString("<p>Your receipt is attached.</p>")
	return b.String()
}

func methodLabel(p events.PaymentEventPayload) string {
	if p.Network != "" {
		return p.Method + " (" + p.Network + ")"
	}
	return p.Method
}

func balance(p events.PaymentEventPayload) float64 {
	if p.AmountPaid >= p.TotalAmount {
		return 0
	}
	return p.TotalAmount - p.AmountPaid
}

func money(currency string, amount float64) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}
