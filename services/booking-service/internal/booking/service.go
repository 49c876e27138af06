package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/availability"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/metrics"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/outbox"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/pending"
)

const MaxNotesLength = payments.MaxMetadataValue

// Ledger is the appointment store.
type Ledger interface {
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	FindByPrincipal(ctx context.Context, principalID string, statuses []model.Status) ([]model.Appointment, error)
	FindActiveBySlot(ctx context.Context, date, timeSlot string) (model.Appointment, bool, error)
	FindActiveByContact(ctx context.Context, date, timeSlot, email string) (model.Appointment, bool, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (model.Appointment, bool, error)
	ListActiveSlots(ctx context.Context, date string) ([]string, error)
	Cancel(ctx context.Context, id, principalID string, asAdmin bool) (model.Appointment, error)
	MarkCompleted(ctx context.Context, id string) (model.Appointment, error)
	ListAll(ctx context.Context, limit int) ([]model.Appointment, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
}

type Notifier interface {
	NotifyBooked(ctx context.Context, appt model.Appointment)
	NotifyCancelled(ctx context.Context, appt model.Appointment)
}

// EventRecorder stores events that are not tied to a ledger write.
type EventRecorder interface {
	InsertStandalone(ctx context.Context, evt outbox.Event) error
}

type Config struct {
	// PaymentsEnabled false books directly at submission, unpaid.
	PaymentsEnabled bool
	PriceCents      int64
	Currency        string
	CallLinkBase    string
	GatewayTimeout  time.Duration
	Schedule        availability.Schedule
}

type Deps struct {
	Ledger   Ledger
	Pending  pending.Store
	Gateway  payments.Gateway
	Notifier Notifier
	Events   EventRecorder
	Metrics  *metrics.BookingMetrics
	Logger   *slog.Logger
}

type Service struct {
	ledger     Ledger
	slots      *availability.Checker
	pending    pending.Store
	gateway    payments.Gateway
	notifier   Notifier
	metrics    *metrics.BookingMetrics
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
	reconciler *SettlementReconciler
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.PriceCents <= 0 {
		cfg.PriceCents = 5000
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Schedule.Duration <= 0 {
		cfg.Schedule = availability.DefaultSchedule()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	slots := availability.NewChecker(deps.Ledger, cfg.Schedule)
	s := &Service{
		ledger:   deps.Ledger,
		slots:    slots,
		pending:  deps.Pending,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
		now:      time.Now,
	}
	s.reconciler = &SettlementReconciler{
		gateway:      deps.Gateway,
		ledger:       deps.Ledger,
		slots:        slots,
		pending:      deps.Pending,
		notifier:     deps.Notifier,
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		callLinkBase: cfg.CallLinkBase,
		timeout:      cfg.GatewayTimeout,
		now:          s.clock,
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now()
}

func (s *Service) PaymentsEnabled() bool {
	return s.cfg.PaymentsEnabled
}

type BookingRequest struct {
	Date             string
	TimeSlot         string
	Notes            string
	ConsultationType string
}

// SubmitResult carries the stored intent, or the appointment when payments
// are disabled.
type SubmitResult struct {
	Pending     *model.PendingBooking
	Appointment *model.Appointment
}

func validate(p model.Principal, req BookingRequest) (model.PendingBooking, error) {
	date := strings.TrimSpace(req.Date)
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return model.PendingBooking{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidBooking)
	}
	slot := strings.TrimSpace(req.TimeSlot)
	if slot == "" || len(slot) > model.MaxTimeSlotLength {
		return model.PendingBooking{}, fmt.Errorf("%w: time_slot is required", ErrInvalidBooking)
	}
	if utf8.RuneCountInString(req.Notes) > MaxNotesLength {
		return model.PendingBooking{}, fmt.Errorf("%w: notes exceed %d characters", ErrInvalidBooking, MaxNotesLength)
	}
	typ := strings.TrimSpace(req.ConsultationType)
	if typ == "" {
		typ = model.DefaultConsultationType
	}
	if len(typ) > model.MaxConsultationTypeLength {
		return model.PendingBooking{}, fmt.Errorf("%w: consultation_type too long", ErrInvalidBooking)
	}
	if strings.TrimSpace(p.Email) == "" {
		return model.PendingBooking{}, fmt.Errorf("%w: principal has no contact email", ErrInvalidBooking)
	}
	return model.PendingBooking{
		PrincipalID:      p.ID,
		Date:             date,
		TimeSlot:         slot,
		Notes:            req.Notes,
		ConsultationType: typ,
		ContactEmail:     strings.TrimSpace(p.Email),
		ContactName:      strings.TrimSpace(p.Name),
	}, nil
}

// SubmitBooking validates the request and stores it as the principal's
// pending intent. A slot that is already held is reported as ErrSlotConflict
// before any payment starts.
func (s *Service) SubmitBooking(ctx context.Context, p model.Principal, req BookingRequest) (SubmitResult, error) {
	if p.ID == "" {
		return SubmitResult{}, ErrNotAuthenticated
	}
	intent, err := validate(p, req)
	if err == nil && s.cfg.Schedule.DayPassed(intent.Date, s.now()) {
		err = fmt.Errorf("%w: date is in the past", ErrInvalidBooking)
	}
	if err != nil {
		s.metrics.ObserveSubmission("invalid")
		return SubmitResult{}, err
	}

	taken, err := s.slots.IsSlotTaken(ctx, intent.Date, intent.TimeSlot)
	if err != nil {
		return SubmitResult{}, err
	}
	if taken {
		s.metrics.ObserveSubmission("slot_conflict")
		s.logger.Info("booking slot already held", "principal_id", p.ID, "date", intent.Date, "time_slot", intent.TimeSlot)
		return SubmitResult{}, ErrSlotConflict
	}

	if !s.cfg.PaymentsEnabled {
		appt, err := s.bookDirect(ctx, intent)
		if err != nil {
			return SubmitResult{}, err
		}
		s.metrics.ObserveSubmission("booked")
		return SubmitResult{Appointment: &appt}, nil
	}

	intent.SubmittedAt = s.now().UTC()
	if err := s.pending.Put(ctx, p.ID, intent); err != nil {
		return SubmitResult{}, err
	}
	s.metrics.ObserveSubmission("pending")
	return SubmitResult{Pending: &intent}, nil
}

func (s *Service) bookDirect(ctx context.Context, intent model.PendingBooking) (model.Appointment, error) {
	appt := newAppointment(intent, s.cfg.CallLinkBase)
	appt.Status = model.StatusBooked
	appt.PaymentStatus = model.PaymentUnpaid

	created, err := s.ledger.Create(ctx, appt)
	if err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			return model.Appointment{}, ErrSlotConflict
		}
		return model.Appointment{}, err
	}
	s.logger.Info("appointment booked", "appointment_id", created.ID, "principal_id", created.PrincipalID, "payment", "disabled")
	s.notifier.NotifyBooked(ctx, created)
	return created, nil
}

func newAppointment(intent model.PendingBooking, callLinkBase string) model.Appointment {
	id := uuid.NewString()
	var callLink string
	if base := strings.TrimRight(callLinkBase, "/"); base != "" {
		callLink = base + "/" + id
	}
	return model.Appointment{
		ID:               id,
		PrincipalID:      intent.PrincipalID,
		Date:             intent.Date,
		TimeSlot:         intent.TimeSlot,
		Notes:            intent.Notes,
		ConsultationType: intent.ConsultationType,
		CallLink:         callLink,
		ContactEmail:     intent.ContactEmail,
		ContactName:      intent.ContactName,
	}
}

// StartPayment opens a checkout session for the principal's pending intent.
// The amount comes from configuration, never from the client. On gateway
// failure the intent is kept so the client can retry.
func (s *Service) StartPayment(ctx context.Context, p model.Principal) (payments.Session, error) {
	if p.ID == "" {
		return payments.Session{}, ErrNotAuthenticated
	}
	intent, ok, err := s.pending.Get(ctx, p.ID)
	if err != nil {
		return payments.Session{}, err
	}
	if !ok {
		return payments.Session{}, ErrNoPendingBooking
	}

	taken, err := s.slots.IsSlotTaken(ctx, intent.Date, intent.TimeSlot)
	if err != nil {
		return payments.Session{}, err
	}
	if taken {
		return payments.Session{}, ErrSlotConflict
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	sess, err := s.gateway.CreateSession(gwCtx, payments.CreateSessionRequest{
		CustomerEmail: intent.ContactEmail,
		AmountCents:   s.cfg.PriceCents,
		Currency:      s.cfg.Currency,
		Description:   "Consultation: " + intent.ConsultationType,
		Metadata:      payments.EncodeIntent(intent),
	})
	if err != nil {
		s.metrics.ObserveGatewayError("create_session")
		s.logger.Warn("checkout session create failed", "principal_id", p.ID, "err", err)
		return payments.Session{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	s.logger.Info("checkout session created", "principal_id", p.ID, "session_id", sess.ID)
	return sess, nil
}

// CompletePayment settles the session the provider redirected back with.
func (s *Service) CompletePayment(ctx context.Context, sessionID string) (Settlement, error) {
	return s.reconciler.Reconcile(ctx, sessionID)
}

// SettleSession settles a session delivered by a verified provider webhook.
func (s *Service) SettleSession(ctx context.Context, sess payments.Session) (Settlement, error) {
	return s.reconciler.ReconcileSession(ctx, sess)
}

func (s *Service) ListMyAppointments(ctx context.Context, p model.Principal, statuses []model.Status) ([]model.Appointment, error) {
	if p.ID == "" {
		return nil, ErrNotAuthenticated
	}
	return s.ledger.FindByPrincipal(ctx, p.ID, statuses)
}

// CancelAppointment cancels an appointment the principal owns (any, for
// admins) and notifies both parties once.
func (s *Service) CancelAppointment(ctx context.Context, p model.Principal, id string) (model.Appointment, error) {
	if p.ID == "" {
		return model.Appointment{}, ErrNotAuthenticated
	}
	appt, err := s.ledger.Cancel(ctx, strings.TrimSpace(id), p.ID, p.IsAdmin())
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "by", p.ID)
	s.notifier.NotifyCancelled(ctx, appt)
	return appt, nil
}

func (s *Service) MarkCompleted(ctx context.Context, p model.Principal, id string) (model.Appointment, error) {
	if err := requireAdmin(p); err != nil {
		return model.Appointment{}, err
	}
	appt, err := s.ledger.MarkCompleted(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment completed", "appointment_id", appt.ID, "by", p.ID)
	return appt, nil
}

func (s *Service) ListAll(ctx context.Context, p model.Principal, limit int) ([]model.Appointment, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return s.ledger.ListAll(ctx, limit)
}

func (s *Service) Stats(ctx context.Context, p model.Principal) (model.Stats, error) {
	if err := requireAdmin(p); err != nil {
		return model.Stats{}, err
	}
	return s.ledger.Stats(ctx, s.now())
}

// FreeSlots lists bookable slot labels on date.
func (s *Service) FreeSlots(ctx context.Context, date string) ([]string, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidBooking)
	}
	return s.slots.FreeSlots(ctx, date, s.now())
}

func requireAdmin(p model.Principal) error {
	if p.ID == "" {
		return ErrNotAuthenticated
	}
	if !p.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
