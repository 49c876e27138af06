package outbox

import (
	"encoding/json"
	"time"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"

	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
	EventSettlementConflict   = "booking.settlement.conflict.v1"
)

type AppointmentPayload struct {
	AppointmentID    string    `json:"appointment_id"`
	PrincipalID      string    `json:"principal_id"`
	Date             string    `json:"date"`
	TimeSlot         string    `json:"time_slot"`
	ConsultationType string    `json:"consultation_type"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
	PaymentSessionID string    `json:"payment_session_id,omitempty"`
	ContactEmail     string    `json:"contact_email"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ConflictPayload describes a paid session that could not be materialized
// because its slot was taken. An operator refunds from this record.
type ConflictPayload struct {
	PaymentSessionID     string    `json:"payment_session_id"`
	PrincipalID          string    `json:"principal_id"`
	Date                 string    `json:"date"`
	TimeSlot             string    `json:"time_slot"`
	ContactEmail         string    `json:"contact_email"`
	HeldByAppointmentID  string    `json:"held_by_appointment_id,omitempty"`
	CompensationRequired bool      `json:"compensation_required"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func AppointmentEvent(eventType string, appt model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:    appt.ID,
		PrincipalID:      appt.PrincipalID,
		Date:             appt.Date,
		TimeSlot:         appt.TimeSlot,
		ConsultationType: appt.ConsultationType,
		Status:           string(appt.Status),
		PaymentStatus:    string(appt.PaymentStatus),
		PaymentSessionID: appt.PaymentSessionID,
		ContactEmail:     appt.ContactEmail,
		OccurredAt:       at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

func ConflictEvent(c ConflictPayload) (Event, error) {
	c.CompensationRequired = true
	c.OccurredAt = c.OccurredAt.UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "payment_session",
		AggregateID:   c.PaymentSessionID,
		EventType:     EventSettlementConflict,
		Payload:       payload,
	}, nil
}
