package main

import (
	"fmt"
	"time"

	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	"github.com/spf13/cobra"
)

// bookingForm holds the booking flags shared by the pay commands.
type bookingForm struct {
	hostelID    string
	roomID      string
	checkIn     string
	checkOut    string
	duration    int
	total       float64
	paymentType string
	fullName    string
	email       string
	phone       string
	bookingID   string
}

func (f *bookingForm) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.hostelID, "hostel", "", "hostel id")
	fl.StringVar(&f.roomID, "room", "", "room id")
	fl.StringVar(&f.checkIn, "check-in", "", "check-in date (YYYY-MM-DD)")
	fl.StringVar(&f.checkOut, "check-out", "", "check-out date (YYYY-MM-DD)")
	fl.IntVar(&f.duration, "duration", 0, "stay duration in months")
	fl.Float64Var(&f.total, "total", 0, "total price of the stay")
	fl.StringVar(&f.paymentType, "type", payment.SelectFull, "full or partial")
	fl.StringVar(&f.fullName, "name", "", "customer full name")
	fl.StringVar(&f.email, "email", "", "customer email")
	fl.StringVar(&f.phone, "phone", "", "customer phone")
	fl.StringVar(&f.bookingID, "booking", "", "pay the balance of this partially paid booking")
	cmd.MarkFlagsMutuallyExclusive("booking", "total")
}

func (f *bookingForm) input() (payment.IntentInput, error) {
	checkIn, err := parseDate("check-in", f.checkIn)
	if err != nil {
		return payment.IntentInput{}, err
	}
	checkOut, err := parseDate("check-out", f.checkOut)
	if err != nil {
		return payment.IntentInput{}, err
	}
	return payment.IntentInput{
		HostelID:     f.hostelID,
		RoomID:       f.roomID,
		CheckInDate:  checkIn,
		CheckOutDate: checkOut,
		Duration:     f.duration,
		TotalAmount:  f.total,
		Selector:     f.paymentType,
		Customer: models.CustomerInfo{
			FullName: f.fullName,
			Email:    f.email,
			Phone:    f.phone,
		},
	}, nil
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}
