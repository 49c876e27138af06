package booking

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/outbox"
)

// memLedger mirrors the Postgres ledger, including its partial unique indexes.
type memLedger struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
	order []string
	// staleReads makes the next n lookups miss, simulating a concurrent
	// settlement that committed after this one read.
	staleReads int
	// failSlotLookup makes the n-th FindActiveBySlot call return slotLookupErr.
	slotLookups    int
	failSlotLookup int
	slotLookupErr  error
}

func newMemLedger() *memLedger {
	return &memLedger{appts: map[string]model.Appointment{}}
}

func (l *memLedger) Create(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	for _, a := range l.appts {
		if appt.PaymentSessionID != "" && a.PaymentSessionID == appt.PaymentSessionID {
			return model.Appointment{}, model.ErrDuplicateSession
		}
		if a.Status.Active() && appt.Status.Active() && a.Date == appt.Date && a.TimeSlot == appt.TimeSlot {
			return model.Appointment{}, model.ErrSlotTaken
		}
	}
	now := time.Now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	l.appts[appt.ID] = appt
	l.order = append(l.order, appt.ID)
	return appt, nil
}

func (l *memLedger) stale() bool {
	if l.staleReads > 0 {
		l.staleReads--
		return true
	}
	return false
}

func (l *memLedger) find(match func(model.Appointment) bool) (model.Appointment, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stale() {
		return model.Appointment{}, false, nil
	}
	for _, id := range l.order {
		if a := l.appts[id]; match(a) {
			return a, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (l *memLedger) FindByPrincipal(_ context.Context, principalID string, statuses []model.Status) ([]model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Appointment
	for _, id := range l.order {
		a := l.appts[id]
		if a.PrincipalID != principalID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func containsStatus(list []model.Status, s model.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (l *memLedger) FindActiveBySlot(_ context.Context, date, slot string) (model.Appointment, bool, error) {
	l.mu.Lock()
	l.slotLookups++
	failing := l.failSlotLookup > 0 && l.slotLookups == l.failSlotLookup
	l.mu.Unlock()
	if failing {
		return model.Appointment{}, false, l.slotLookupErr
	}
	return l.find(func(a model.Appointment) bool {
		return a.Status.Active() && a.Date == date && a.TimeSlot == slot
	})
}

func (l *memLedger) FindActiveByContact(_ context.Context, date, slot, email string) (model.Appointment, bool, error) {
	return l.find(func(a model.Appointment) bool {
		return a.Status.Active() && a.Date == date && a.TimeSlot == slot && strings.EqualFold(a.ContactEmail, email)
	})
}

func (l *memLedger) FindByPaymentSession(_ context.Context, sessionID string) (model.Appointment, bool, error) {
	return l.find(func(a model.Appointment) bool {
		return a.PaymentSessionID != "" && a.PaymentSessionID == sessionID
	})
}

func (l *memLedger) ListActiveSlots(_ context.Context, date string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, a := range l.appts {
		if a.Status.Active() && a.Date == date {
			out = append(out, a.TimeSlot)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *memLedger) Cancel(_ context.Context, id, principalID string, asAdmin bool) (model.Appointment, error) {
	return l.transition(id, principalID, asAdmin, model.StatusCancelled)
}

func (l *memLedger) MarkCompleted(_ context.Context, id string) (model.Appointment, error) {
	return l.transition(id, "", true, model.StatusCompleted)
}

func (l *memLedger) transition(id, principalID string, asAdmin bool, to model.Status) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appts[id]
	if !ok || (!asAdmin && a.PrincipalID != principalID) {
		return model.Appointment{}, model.ErrNotFound
	}
	if a.Status == model.StatusCancelled && to == model.StatusCancelled {
		return model.Appointment{}, model.ErrNotFound
	}
	if !model.CanTransition(a.Status, to) {
		return model.Appointment{}, model.ErrInvalidTransition
	}
	a.Status = to
	if to == model.StatusCancelled {
		now := time.Now()
		a.CancelledAt = &now
	}
	l.appts[id] = a
	return a, nil
}

func (l *memLedger) ListAll(_ context.Context, limit int) ([]model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Appointment
	for i := len(l.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.appts[l.order[i]])
	}
	return out, nil
}

func (l *memLedger) Stats(_ context.Context, _ time.Time) (model.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := model.Stats{ByStatus: map[model.Status]int{}}
	for _, a := range l.appts {
		stats.Total++
		stats.ByStatus[a.Status]++
		stats.ThisMonth++
	}
	return stats, nil
}

func (l *memLedger) activeFor(date, slot string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.appts {
		if a.Status.Active() && a.Date == date && a.TimeSlot == slot {
			n++
		}
	}
	return n
}

type countingNotifier struct {
	mu        sync.Mutex
	booked    []model.Appointment
	cancelled []model.Appointment
}

func (n *countingNotifier) NotifyBooked(_ context.Context, appt model.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, appt)
}

func (n *countingNotifier) NotifyCancelled(_ context.Context, appt model.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, appt)
}

func (n *countingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.booked), len(n.cancelled)
}

type memEvents struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (e *memEvents) InsertStandalone(_ context.Context, evt outbox.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
