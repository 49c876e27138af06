package model

import (
	"errors"
	"time"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses occupy a slot and block re-booking.
var ActiveStatuses = []Status{StatusBooked, StatusConfirmed}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusBooked, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, true
	}
	return "", false
}

func (s Status) Active() bool {
	return s == StatusBooked || s == StatusConfirmed
}

// CanTransition reports whether an appointment may move from one status to
// another. Only active appointments move, and only to a terminal status.
func CanTransition(from, to Status) bool {
	if !from.Active() {
		return false
	}
	return to == StatusCancelled || to == StatusCompleted
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

const (
	DefaultConsultationType = "General"
	DateLayout              = "2006-01-02"

	MaxTimeSlotLength         = 64
	MaxConsultationTypeLength = 100
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotTaken         = errors.New("time slot already taken")
	ErrDuplicateSession  = errors.New("payment session already settled")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Appointment struct {
	ID               string
	PrincipalID      string
	Date             string
	TimeSlot         string
	Notes            string
	ConsultationType string
	Status           Status
	PaymentStatus    PaymentStatus
	CallLink         string
	ContactEmail     string
	ContactName      string
	PaymentSessionID string
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PendingBooking is a principal's unpaid intent. Contact fields are captured
// at submission so settlement never needs a second principal lookup.
type PendingBooking struct {
	PrincipalID      string    `json:"principal_id"`
	Date             string    `json:"date"`
	TimeSlot         string    `json:"time_slot"`
	Notes            string    `json:"notes"`
	ConsultationType string    `json:"consultation_type"`
	ContactEmail     string    `json:"contact_email"`
	ContactName      string    `json:"contact_name"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

type Principal struct {
	ID    string
	Email string
	Name  string
	Role  string
}

func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

type Stats struct {
	Total     int
	ByStatus  map[Status]int
	ThisMonth int
}
