package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brilliant-consulting/consultbook/libs/db"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/outbox"
)

const (
	constraintActiveSlot     = "appointments_active_slot_uq"
	constraintPaymentSession = "appointments_payment_session_uq"
)

const appointmentColumns = `
	id::text, principal_id, appointment_date::text, time_slot, notes, consultation_type,
	status, payment_status, call_link, contact_email, contact_name,
	COALESCE(payment_session_id, ''), cancelled_at, created_at, updated_at`

type AppointmentRepository struct {
	conn   db.Conn
	outbox *outbox.Repository
	now    func() time.Time
}

func NewAppointmentRepository(conn db.Conn, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{conn: conn, outbox: ob, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var status, paymentStatus string
	err := row.Scan(
		&appt.ID,
		&appt.PrincipalID,
		&appt.Date,
		&appt.TimeSlot,
		&appt.Notes,
		&appt.ConsultationType,
		&status,
		&paymentStatus,
		&appt.CallLink,
		&appt.ContactEmail,
		&appt.ContactName,
		&appt.PaymentSessionID,
		&appt.CancelledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.PaymentStatus = model.PaymentStatus(paymentStatus)
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Create inserts appt and its booked event in one transaction. The partial
// unique indexes decide races: losing one yields model.ErrSlotTaken or
// model.ErrDuplicateSession.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	var sessionID *string
	if appt.PaymentSessionID != "" {
		sessionID = &appt.PaymentSessionID
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, principal_id, appointment_date, time_slot, notes, consultation_type,
			 status, payment_status, call_link, contact_email, contact_name, payment_session_id)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+appointmentColumns,
		appt.ID, appt.PrincipalID, appt.Date, appt.TimeSlot, appt.Notes, appt.ConsultationType,
		string(appt.Status), string(appt.PaymentStatus), appt.CallLink, appt.ContactEmail, appt.ContactName, sessionID,
	))
	if err != nil {
		return model.Appointment{}, mapCreateError(err)
	}

	evt, err := outbox.AppointmentEvent(outbox.EventAppointmentBooked, created, r.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("outbox insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, mapCreateError(err)
	}
	return created, nil
}

func mapCreateError(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintActiveSlot:
		return model.ErrSlotTaken
	case constraintPaymentSession:
		return model.ErrDuplicateSession
	}
	return err
}

// FindByPrincipal lists a principal's appointments, newest date first. An
// empty statuses slice means every status.
func (r *AppointmentRepository) FindByPrincipal(ctx context.Context, principalID string, statuses []model.Status) ([]model.Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = r.conn.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE principal_id = $1
			ORDER BY appointment_date DESC, time_slot ASC
		`, principalID)
	} else {
		filter := make([]string, 0, len(statuses))
		for _, s := range statuses {
			filter = append(filter, string(s))
		}
		rows, err = r.conn.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE principal_id = $1 AND status = ANY($2)
			ORDER BY appointment_date DESC, time_slot ASC
		`, principalID, filter)
	}
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) FindActiveBySlot(ctx context.Context, date, timeSlot string) (model.Appointment, bool, error) {
	return r.findOne(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1::date AND time_slot = $2 AND status IN ('booked', 'confirmed')
		LIMIT 1
	`, date, timeSlot)
}

// FindActiveByContact matches the active appointment a settlement would have
// produced for the same slot and contact.
func (r *AppointmentRepository) FindActiveByContact(ctx context.Context, date, timeSlot, email string) (model.Appointment, bool, error) {
	return r.findOne(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1::date AND time_slot = $2 AND lower(contact_email) = lower($3)
			AND status IN ('booked', 'confirmed')
		LIMIT 1
	`, date, timeSlot, email)
}

func (r *AppointmentRepository) FindByPaymentSession(ctx context.Context, sessionID string) (model.Appointment, bool, error) {
	return r.findOne(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_session_id = $1
	`, sessionID)
}

// ListActiveSlots returns the labels of slots held on date.
func (r *AppointmentRepository) ListActiveSlots(ctx context.Context, date string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE appointment_date = $1::date AND status IN ('booked', 'confirmed')
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

func (r *AppointmentRepository) findOne(ctx context.Context, query string, args ...any) (model.Appointment, bool, error) {
	appt, err := scanAppointment(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, model.ErrNotFound
	}
	appt, ok, err := r.findOne(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

// Cancel moves an active appointment to cancelled. Unless asAdmin, an
// appointment owned by someone else is reported as model.ErrNotFound so the
// caller learns nothing about it. An already cancelled appointment is also
// model.ErrNotFound.
func (r *AppointmentRepository) Cancel(ctx context.Context, id, principalID string, asAdmin bool) (model.Appointment, error) {
	return r.transition(ctx, id, principalID, asAdmin, model.StatusCancelled, outbox.EventAppointmentCancelled)
}

func (r *AppointmentRepository) MarkCompleted(ctx context.Context, id string) (model.Appointment, error) {
	return r.transition(ctx, id, "", true, model.StatusCompleted, outbox.EventAppointmentCompleted)
}

func (r *AppointmentRepository) transition(ctx context.Context, id, principalID string, asAdmin bool, to model.Status, eventType string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, model.ErrNotFound
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}
	if !asAdmin && current.PrincipalID != principalID {
		return model.Appointment{}, model.ErrNotFound
	}
	if current.Status == model.StatusCancelled && to == model.StatusCancelled {
		return model.Appointment{}, model.ErrNotFound
	}
	if !model.CanTransition(current.Status, to) {
		return model.Appointment{}, model.ErrInvalidTransition
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, string(to),
	))
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentEvent(eventType, updated, r.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("outbox insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

func (r *AppointmentRepository) ListAll(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Stats counts appointments per status and those created since the start of
// now's month.
func (r *AppointmentRepository) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	stats := model.Stats{ByStatus: map[model.Status]int{}}

	rows, err := r.conn.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		GROUP BY status
	`)
	if err != nil {
		return model.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return model.Stats{}, err
		}
		stats.ByStatus[model.Status(status)] = int(n)
		stats.Total += int(n)
	}
	if rows.Err() != nil {
		return model.Stats{}, rows.Err()
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var thisMonth int64
	if err := r.conn.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE created_at >= $1
	`, monthStart).Scan(&thisMonth); err != nil {
		return model.Stats{}, err
	}
	stats.ThisMonth = int(thisMonth)
	return stats, nil
}
