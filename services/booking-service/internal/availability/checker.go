package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

// Ledger is the read side of the appointment store the checker needs.
type Ledger interface {
	FindActiveBySlot(ctx context.Context, date, timeSlot string) (model.Appointment, bool, error)
	ListActiveSlots(ctx context.Context, date string) ([]string, error)
}

type Checker struct {
	ledger   Ledger
	schedule Schedule
}

func NewChecker(ledger Ledger, schedule Schedule) *Checker {
	return &Checker{ledger: ledger, schedule: schedule}
}

// IsSlotTaken reports whether an active appointment occupies (date, timeSlot).
func (c *Checker) IsSlotTaken(ctx context.Context, date, timeSlot string) (bool, error) {
	_, ok, err := c.ledger.FindActiveBySlot(ctx, date, timeSlot)
	if err != nil {
		return false, fmt.Errorf("slot lookup: %w", err)
	}
	return ok, nil
}

// Holder returns the active appointment occupying the slot, if any.
func (c *Checker) Holder(ctx context.Context, date, timeSlot string) (model.Appointment, bool, error) {
	return c.ledger.FindActiveBySlot(ctx, date, timeSlot)
}

// FreeSlots lists the schedule's slots on date that are neither held nor past.
// Held labels that do not parse as a time range are excluded by exact match.
func (c *Checker) FreeSlots(ctx context.Context, date string, now time.Time) ([]string, error) {
	held, err := c.ledger.ListActiveSlots(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list held slots: %w", err)
	}
	heldSet := make(map[string]struct{}, len(held))
	busy := make([]Interval, 0, len(held))
	for _, label := range held {
		heldSet[label] = struct{}{}
		if iv, ok := c.schedule.Interval(date, label); ok {
			busy = append(busy, iv)
		}
	}

	labels, err := c.schedule.Slots(date, busy, now)
	if err != nil {
		return nil, err
	}
	free := labels[:0]
	for _, l := range labels {
		if _, taken := heldSet[l]; !taken {
			free = append(free, l)
		}
	}
	return free, nil
}
