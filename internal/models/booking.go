package models

import "time"

type CustomerInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type Booking struct {
	ID            string        `json:"id"`
	HostelID      string        `json:"hostelId"`
	RoomID        string        `json:"roomId"`
	CheckInDate   time.Time     `json:"checkInDate"`
	CheckOutDate  time.Time     `json:"checkOutDate"`
	Duration      int           `json:"duration"`
	TotalAmount   float64       `json:"totalAmount"`
	PaymentAmount float64       `json:"paymentAmount"`
	AmountPaid    float64       `json:"amountPaid"`
	PaymentType   string        `json:"paymentType"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Customer      CustomerInfo  `json:"customerInfo"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Version       int64         `json:"version"`
}

// Balance is what remains to be paid.
func (b *Booking) Balance() float64 {
	rest := ToMinorUnits(b.TotalAmount) - ToMinorUnits(b.AmountPaid)
	if rest <= 0 {
		return 0
	}
	return FromMinorUnits(rest)
}

type PaymentAttempt struct {
	Reference  string        `json:"reference"`
	BookingID  string        `json:"bookingId"`
	Method     string        `json:"method"`
	Network    string        `json:"network,omitempty"`
	Amount     float64       `json:"amount"`
	Status     AttemptStatus `json:"status"`
	LastError  string        `json:"lastError,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
}

// Room is a bookable unit of a hostel, loaded from the room catalog.
type Room struct {
	HostelID string  `yaml:"hostel_id" json:"hostelId"`
	RoomID   string  `yaml:"room_id" json:"roomId"`
	Name     string  `yaml:"name" json:"name"`
	Price    float64 `yaml:"price" json:"price"`
	Capacity int64   `yaml:"capacity" json:"capacity"`
	IsActive bool    `yaml:"is_active" json:"isActive"`
}

func (r Room) Key() string {
	return r.HostelID + "/" + r.RoomID
}

// Task is a queued background job (verification or ledger sync).
type Task struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	Reference   string     `json:"reference"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// LedgerEntry is a payment attempt joined with its booking, one row of the payments ledger.
type LedgerEntry struct {
	PaymentAttempt
	HostelID      string        `json:"hostelId"`
	RoomID        string        `json:"roomId"`
	PaymentType   string        `json:"paymentType"`
	TotalAmount   float64       `json:"totalAmount"`
	AmountPaid    float64       `json:"amountPaid"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Customer      CustomerInfo  `json:"customerInfo"`
}

type PaymentFilter struct {
	Status    AttemptStatus
	BookingID string
	Method    string
	Limit     int
	Offset    int
}

// SettleFunc applies a resolved attempt to its booking inside the settlement transaction.
type SettleFunc func(booking *Booking, attempt *PaymentAttempt) error

// Verification is the answer of GET /api/payments/verify/:reference.
type Verification struct {
	Status        string        `json:"status"`
	Reference     string        `json:"reference"`
	Amount        float64       `json:"amount"`
	BookingID     string        `json:"bookingId"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
}
