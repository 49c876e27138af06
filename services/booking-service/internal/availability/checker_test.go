package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

type fakeLedger struct {
	held map[string][]string
	err  error
}

func (f fakeLedger) FindActiveBySlot(_ context.Context, date, slot string) (model.Appointment, bool, error) {
	if f.err != nil {
		return model.Appointment{}, false, f.err
	}
	for _, s := range f.held[date] {
		if s == slot {
			return model.Appointment{Date: date, TimeSlot: slot, Status: model.StatusConfirmed}, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (f fakeLedger) ListActiveSlots(_ context.Context, date string) ([]string, error) {
	return f.held[date], f.err
}

func TestIsSlotTaken(t *testing.T) {
	c := NewChecker(fakeLedger{held: map[string][]string{"2025-03-01": {"10:00-10:30"}}}, DefaultSchedule())

	taken, err := c.IsSlotTaken(context.Background(), "2025-03-01", "10:00-10:30")
	if err != nil || !taken {
		t.Fatalf("expected taken, got %v %v", taken, err)
	}
	taken, err = c.IsSlotTaken(context.Background(), "2025-03-01", "10:30-11:00")
	if err != nil || taken {
		t.Fatalf("expected free, got %v %v", taken, err)
	}
}

func TestIsSlotTakenPropagatesLedgerError(t *testing.T) {
	boom := errors.New("db down")
	c := NewChecker(fakeLedger{err: boom}, DefaultSchedule())
	if _, err := c.IsSlotTaken(context.Background(), "2025-03-01", "10:00-10:30"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped ledger error, got %v", err)
	}
}

func TestFreeSlots(t *testing.T) {
	sched := Schedule{DayStart: "09:00", DayEnd: "11:00", Duration: 30 * time.Minute, Location: time.UTC}
	c := NewChecker(fakeLedger{held: map[string][]string{"2025-03-01": {"10:00-10:30", "custom"}}}, sched)
	now := time.Date(2025, 3, 1, 9, 10, 0, 0, time.UTC)

	free, err := c.FreeSlots(context.Background(), "2025-03-01", now)
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	want := []string{"09:30-10:00", "10:30-11:00"}
	if len(free) != len(want) {
		t.Fatalf("expected %v, got %v", want, free)
	}
	for i := range want {
		if free[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, free)
		}
	}
}

func TestFreeSlotsRejectsBadDate(t *testing.T) {
	c := NewChecker(fakeLedger{}, DefaultSchedule())
	if _, err := c.FreeSlots(context.Background(), "03/01/2025", time.Time{}); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestScheduleValidate(t *testing.T) {
	if err := DefaultSchedule().Validate(); err != nil {
		t.Fatalf("default schedule invalid: %v", err)
	}
	bad := Schedule{DayStart: "17:00", DayEnd: "09:00", Duration: time.Minute}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected inverted day to be rejected")
	}
}

func TestScheduleInterval(t *testing.T) {
	s := DefaultSchedule()
	iv, ok := s.Interval("2025-03-01", "10:00-10:30")
	if !ok {
		t.Fatal("expected label to parse")
	}
	if s.Label(iv.Start) != "10:00-10:30" {
		t.Fatalf("unexpected round trip %s", s.Label(iv.Start))
	}
	if _, ok := s.Interval("2025-03-01", "morning"); ok {
		t.Fatal("opaque label must not parse")
	}
}
