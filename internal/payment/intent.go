package payment

import (
	"fmt"
	"strings"
	"time"

	"hostelpay/internal/models"
)

// Selector values chosen by the customer on the booking form.
const (
	SelectFull    = "full"
	SelectPartial = "partial"
)

type IntentInput struct {
	HostelID     string
	RoomID       string
	CheckInDate  time.Time
	CheckOutDate time.Time
	Duration     int
	TotalAmount  float64
	Selector     string
	Customer     models.CustomerInfo
}

type MobileInput struct {
	Network     string
	PhoneNumber string
}

type MobilePayment struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phoneNumber"`
}

// Intent is the request body of initialize-payment and mobile-payment.
type Intent struct {
	HostelID      string              `json:"hostelId"`
	RoomID        string              `json:"roomId"`
	CheckInDate   string              `json:"checkInDate"`
	CheckOutDate  string              `json:"checkOutDate"`
	Duration      int                 `json:"duration"`
	TotalAmount   float64             `json:"totalAmount"`
	PaymentAmount float64             `json:"paymentAmount"`
	PaymentType   string              `json:"paymentType"`
	Email         string              `json:"email"`
	Customer      models.CustomerInfo `json:"customerInfo"`
	BookingID     string              `json:"bookingId,omitempty"`
	MobilePayment *MobilePayment      `json:"mobilePayment,omitempty"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) add(field string) {
	e.Fields = append(e.Fields, field)
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PaymentAmountFor returns the charge and label for a selector.
func PaymentAmountFor(total float64, selector string) (float64, string, error) {
	switch selector {
	case SelectFull:
		return total, models.LabelFullPayment, nil
	case SelectPartial:
		return PartialAmount(total), models.LabelPartialPayment, nil
	}
	return 0, "", fmt.Errorf("unknown payment type %q", selector)
}

// PartialAmount is half of total rounded down to a whole pesewa. The odd
// pesewa of an odd total stays on the balance.
func PartialAmount(total float64) float64 {
	return models.FromMinorUnits(models.ToMinorUnits(total) / 2)
}

// BuildIntent turns booking context into a card payment request.
func BuildIntent(in IntentInput) (Intent, error) {
	verr := &ValidationError{}
	validateCustomer(in.Customer, verr)

	amount, label, err := PaymentAmountFor(in.TotalAmount, in.Selector)
	if err != nil {
		verr.add("paymentType")
	}
	if in.TotalAmount <= 0 {
		verr.add("totalAmount")
	}
	if !in.CheckInDate.IsZero() && !in.CheckOutDate.IsZero() && in.CheckOutDate.Before(in.CheckInDate) {
		verr.add("checkOutDate")
	}
	if err := verr.orNil(); err != nil {
		return Intent{}, err
	}

	return Intent{
		HostelID:      in.HostelID,
		RoomID:        in.RoomID,
		CheckInDate:   formatDate(in.CheckInDate),
		CheckOutDate:  formatDate(in.CheckOutDate),
		Duration:      in.Duration,
		TotalAmount:   in.TotalAmount,
		PaymentAmount: amount,
		PaymentType:   label,
		Email:         strings.TrimSpace(in.Customer.Email),
		Customer:      trimCustomer(in.Customer),
	}, nil
}

// BuildMobileIntent is BuildIntent plus the carrier network and wallet number.
func BuildMobileIntent(in IntentInput, mobile MobileInput) (Intent, error) {
	intent, err := BuildIntent(in)

	verr, ok := err.(*ValidationError)
	if err != nil && !ok {
		return Intent{}, err
	}
	if verr == nil {
		verr = &ValidationError{}
	}
	if !ValidNetwork(mobile.Network) {
		verr.add("network")
	}
	if strings.TrimSpace(mobile.PhoneNumber) == "" {
		verr.add("phoneNumber")
	}
	if err := verr.orNil(); err != nil {
		return Intent{}, err
	}

	intent.MobilePayment = &MobilePayment{
		Network:     mobile.Network,
		PhoneNumber: strings.TrimSpace(mobile.PhoneNumber),
	}
	return intent, nil
}

// BalanceIntent requests the remainder of a partially paid booking.
func BalanceIntent(b *models.Booking) (Intent, error) {
	if b.PaymentStatus == models.PaymentPaid {
		return Intent{}, ErrAlreadyPaid
	}
	if b.PaymentStatus != models.PaymentPartial {
		return Intent{}, fmt.Errorf("%w: balance on %s booking", ErrInvalidTransition, b.PaymentStatus)
	}
	return Intent{
		HostelID:      b.HostelID,
		RoomID:        b.RoomID,
		CheckInDate:   formatDate(b.CheckInDate),
		CheckOutDate:  formatDate(b.CheckOutDate),
		Duration:      b.Duration,
		TotalAmount:   b.TotalAmount,
		PaymentAmount: b.Balance(),
		PaymentType:   models.LabelPartialPayment,
		Email:         b.Customer.Email,
		Customer:      b.Customer,
		BookingID:     b.ID,
	}, nil
}

// Validate re-checks an intent received over the wire. Amounts of new
// bookings must match the label; balance intents are checked against the
// stored booking by the caller.
func (i Intent) Validate() error {
	verr := &ValidationError{}
	validateCustomer(i.Customer, verr)

	if strings.TrimSpace(i.HostelID) == "" {
		verr.add("hostelId")
	}
	if strings.TrimSpace(i.RoomID) == "" {
		verr.add("roomId")
	}
	checkIn, errIn := time.Parse(models.DateLayout, i.CheckInDate)
	if errIn != nil {
		verr.add("checkInDate")
	}
	checkOut, errOut := time.Parse(models.DateLayout, i.CheckOutDate)
	if errOut != nil {
		verr.add("checkOutDate")
	}
	if errIn == nil && errOut == nil && !checkOut.After(checkIn) {
		verr.add("checkOutDate")
	}
	if i.TotalAmount <= 0 {
		verr.add("totalAmount")
	}
	if models.ToMinorUnits(i.PaymentAmount) <= 0 || models.ToMinorUnits(i.PaymentAmount) > models.ToMinorUnits(i.TotalAmount) {
		verr.add("paymentAmount")
	}

	if i.BookingID == "" {
		switch i.PaymentType {
		case models.LabelFullPayment:
			if !SameAmount(i.PaymentAmount, i.TotalAmount) {
				verr.add("paymentAmount")
			}
		case models.LabelPartialPayment:
			if !SameAmount(i.PaymentAmount, PartialAmount(i.TotalAmount)) {
				verr.add("paymentAmount")
			}
		default:
			verr.add("paymentType")
		}
	}

	if i.MobilePayment != nil {
		if !ValidNetwork(i.MobilePayment.Network) {
			verr.add("network")
		}
		if strings.TrimSpace(i.MobilePayment.PhoneNumber) == "" {
			verr.add("phoneNumber")
		}
	}

	return verr.orNil()
}

// Dates parses the check-in and check-out dates of a validated intent.
func (i Intent) Dates() (time.Time, time.Time) {
	in, _ := time.Parse(models.DateLayout, i.CheckInDate)
	out, _ := time.Parse(models.DateLayout, i.CheckOutDate)
	return in, out
}

func ValidNetwork(network string) bool {
	switch network {
	case models.NetworkMTN, models.NetworkVodafone, models.NetworkAirtelTigo:
		return true
	}
	return false
}

// SameAmount reports whether a and b are the same number of pesewas.
func SameAmount(a, b float64) bool {
	return models.ToMinorUnits(a) == models.ToMinorUnits(b)
}

func validateCustomer(c models.CustomerInfo, verr *ValidationError) {
	if strings.TrimSpace(c.FullName) == "" {
		verr.add("fullName")
	}
	if strings.TrimSpace(c.Email) == "" {
		verr.add("email")
	}
	if strings.TrimSpace(c.Phone) == "" {
		verr.add("phone")
	}
}

func trimCustomer(c models.CustomerInfo) models.CustomerInfo {
	return models.CustomerInfo{
		FullName: strings.TrimSpace(c.FullName),
		Email:    strings.TrimSpace(c.Email),
		Phone:    strings.TrimSpace(c.Phone),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}
