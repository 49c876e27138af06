package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/availability"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/metrics"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/outbox"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/pending"
)

var tracer = otel.Tracer("github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking")

// Settlement is the result of reconciling a paid session. Duplicate is set
// when the appointment already existed, for example on a page reload.
type Settlement struct {
	Appointment model.Appointment
	Duplicate   bool
}

// SettlementReconciler turns a paid checkout session into exactly one
// appointment. Reconciling the same session again returns the same
// appointment.
type SettlementReconciler struct {
	gateway      payments.Gateway
	ledger       Ledger
	slots        *availability.Checker
	pending      pending.Store
	notifier     Notifier
	events       EventRecorder
	metrics      *metrics.BookingMetrics
	logger       *slog.Logger
	callLinkBase string
	timeout      time.Duration
	now          func() time.Time
}

// Reconcile retrieves the session from the provider and settles it.
func (r *SettlementReconciler) Reconcile(ctx context.Context, sessionID string) (Settlement, error) {
	sessionID = strings.TrimSpace(sessionID)
	ctx, span := tracer.Start(ctx, "booking.settlement.reconcile",
		trace.WithAttributes(attribute.String("payment.session_id", sessionID)))
	defer span.End()

	if sessionID == "" {
		r.metrics.ObserveSettlement(metrics.OutcomeInvalidSession)
		return Settlement{}, ErrInvalidSession
	}

	gwCtx, cancel := context.WithTimeout(ctx, r.timeout)
	sess, err := r.gateway.RetrieveSession(gwCtx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			r.metrics.ObserveSettlement(metrics.OutcomeInvalidSession)
			return Settlement{}, ErrInvalidSession
		}
		r.metrics.ObserveGatewayError("retrieve_session")
		r.metrics.ObserveSettlement(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return Settlement{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return r.settle(ctx, span, sess)
}

// ReconcileSession settles a session whose state is already known, such as
// one delivered in a signed webhook.
func (r *SettlementReconciler) ReconcileSession(ctx context.Context, sess payments.Session) (Settlement, error) {
	ctx, span := tracer.Start(ctx, "booking.settlement.reconcile",
		trace.WithAttributes(attribute.String("payment.session_id", sess.ID)))
	defer span.End()
	return r.settle(ctx, span, sess)
}

func (r *SettlementReconciler) settle(ctx context.Context, span trace.Span, sess payments.Session) (Settlement, error) {
	if !sess.Paid() {
		r.metrics.ObserveSettlement(metrics.OutcomePaymentIncomplete)
		r.logger.Info("settlement skipped: payment incomplete", "session_id", sess.ID, "payment_status", string(sess.PaymentStatus))
		return Settlement{}, ErrPaymentIncomplete
	}

	intent, err := payments.DecodeIntent(sess.Metadata)
	if err != nil {
		r.metrics.ObserveSettlement(metrics.OutcomeInvalidSession)
		r.logger.Error("settlement metadata invalid", "session_id", sess.ID, "err", err)
		return Settlement{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	span.SetAttributes(
		attribute.String("booking.date", intent.Date),
		attribute.String("booking.time_slot", intent.TimeSlot),
	)

	if existing, ok, err := r.existing(ctx, sess.ID, intent); err != nil {
		return Settlement{}, r.fail(span, err)
	} else if ok {
		return r.duplicate(existing, sess.ID), nil
	}

	holder, taken, err := r.slots.Holder(ctx, intent.Date, intent.TimeSlot)
	if err != nil {
		return Settlement{}, r.fail(span, err)
	}
	if taken {
		if sameSettlement(holder, sess.ID, intent) {
			return r.duplicate(holder, sess.ID), nil
		}
		return Settlement{}, r.conflict(ctx, sess, intent, holder.ID)
	}

	appt := newAppointment(intent, r.callLinkBase)
	appt.Status = model.StatusConfirmed
	appt.PaymentStatus = model.PaymentPaid
	appt.PaymentSessionID = sess.ID

	created, err := r.ledger.Create(ctx, appt)
	if err != nil {
		if !errors.Is(err, model.ErrSlotTaken) && !errors.Is(err, model.ErrDuplicateSession) {
			return Settlement{}, r.fail(span, err)
		}
		// Lost the race on a unique index: whoever won decides the outcome.
		existing, ok, lookupErr := r.existing(ctx, sess.ID, intent)
		if lookupErr != nil {
			return Settlement{}, r.fail(span, lookupErr)
		}
		if ok {
			return r.duplicate(existing, sess.ID), nil
		}
		holder, taken, err := r.slots.Holder(ctx, intent.Date, intent.TimeSlot)
		if err != nil {
			return Settlement{}, r.fail(span, err)
		}
		if taken && sameSettlement(holder, sess.ID, intent) {
			return r.duplicate(holder, sess.ID), nil
		}
		return Settlement{}, r.conflict(ctx, sess, intent, holder.ID)
	}

	r.metrics.ObserveSettlement(metrics.OutcomeCreated)
	r.logger.Info("appointment settled",
		"appointment_id", created.ID,
		"principal_id", created.PrincipalID,
		"session_id", sess.ID,
		"date", created.Date,
		"time_slot", created.TimeSlot,
	)
	r.clearPending(ctx, intent)
	r.notifier.NotifyBooked(ctx, created)
	return Settlement{Appointment: created}, nil
}

// existing finds an appointment this session already produced, either by
// session id or by the same contact holding the same slot.
func (r *SettlementReconciler) existing(ctx context.Context, sessionID string, intent model.PendingBooking) (model.Appointment, bool, error) {
	appt, ok, err := r.ledger.FindByPaymentSession(ctx, sessionID)
	if err != nil || ok {
		return appt, ok, err
	}
	return r.ledger.FindActiveByContact(ctx, intent.Date, intent.TimeSlot, intent.ContactEmail)
}

// sameSettlement reports whether appt is what settling this session produces.
func sameSettlement(appt model.Appointment, sessionID string, intent model.PendingBooking) bool {
	if appt.PaymentSessionID != "" && appt.PaymentSessionID == sessionID {
		return true
	}
	return strings.EqualFold(appt.ContactEmail, intent.ContactEmail)
}

func (r *SettlementReconciler) duplicate(appt model.Appointment, sessionID string) Settlement {
	r.metrics.ObserveSettlement(metrics.OutcomeDuplicate)
	r.logger.Info("settlement duplicate", "appointment_id", appt.ID, "session_id", sessionID)
	return Settlement{Appointment: appt, Duplicate: true}
}

// conflict handles a paid session whose slot belongs to someone else. The
// payer has been charged without a booking, so the case is logged at ERROR
// and recorded for an operator to refund.
func (r *SettlementReconciler) conflict(ctx context.Context, sess payments.Session, intent model.PendingBooking, holderID string) error {
	r.metrics.ObserveSettlement(metrics.OutcomeSlotConflict)
	r.logger.Error("settlement slot conflict",
		"session_id", sess.ID,
		"principal_id", intent.PrincipalID,
		"date", intent.Date,
		"time_slot", intent.TimeSlot,
		"held_by", holderID,
		"compensation_required", true,
	)
	if r.events != nil {
		evt, err := outbox.ConflictEvent(outbox.ConflictPayload{
			PaymentSessionID:    sess.ID,
			PrincipalID:         intent.PrincipalID,
			Date:                intent.Date,
			TimeSlot:            intent.TimeSlot,
			ContactEmail:        intent.ContactEmail,
			HeldByAppointmentID: holderID,
			OccurredAt:          r.now(),
		})
		if err == nil {
			err = r.events.InsertStandalone(ctx, evt)
		}
		if err != nil {
			r.logger.Error("settlement conflict event not recorded", "session_id", sess.ID, "err", err)
		}
	}
	return ErrSlotConflict
}

func (r *SettlementReconciler) fail(span trace.Span, err error) error {
	r.metrics.ObserveSettlement(metrics.OutcomeError)
	span.RecordError(err)
	span.SetStatus(codes.Error, "settlement failed")
	return err
}

// clearPending drops the principal's intent if it is the one just settled.
// A newer intent for a different slot is left alone.
func (r *SettlementReconciler) clearPending(ctx context.Context, settled model.PendingBooking) {
	current, ok, err := r.pending.Get(ctx, settled.PrincipalID)
	if err != nil {
		r.logger.Warn("pending booking lookup failed", "principal_id", settled.PrincipalID, "err", err)
		return
	}
	if !ok || current.Date != settled.Date || current.TimeSlot != settled.TimeSlot {
		return
	}
	if err := r.pending.Clear(ctx, settled.PrincipalID); err != nil {
		r.logger.Warn("pending booking clear failed", "principal_id", settled.PrincipalID, "err", err)
	}
}
