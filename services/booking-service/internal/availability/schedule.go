package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

const clockLayout = "15:04"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) overlapsAny(busy []Interval) bool {
	for _, b := range busy {
		if i.Overlaps(b) {
			return true
		}
	}
	return false
}

// Schedule describes the bookable day. Slots are labelled "HH:MM-HH:MM".
type Schedule struct {
	DayStart string
	DayEnd   string
	Duration time.Duration
	Location *time.Location
}

func DefaultSchedule() Schedule {
	return Schedule{DayStart: "09:00", DayEnd: "17:00", Duration: 30 * time.Minute, Location: time.UTC}
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Schedule) Validate() error {
	start, err := time.Parse(clockLayout, s.DayStart)
	if err != nil {
		return fmt.Errorf("day start: %w", err)
	}
	end, err := time.Parse(clockLayout, s.DayEnd)
	if err != nil {
		return fmt.Errorf("day end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("day end %s must be after day start %s", s.DayEnd, s.DayStart)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	return nil
}

// window returns the bookable interval of date in the schedule's location.
func (s Schedule) window(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, s.location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := s.clock(day, s.DayStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.clock(day, s.DayEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (s Schedule) clock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, s.location()), nil
}

// Label formats the slot starting at start.
// DayPassed reports whether date falls before today in the schedule's location.
func (s Schedule) DayPassed(date string, now time.Time) bool {
	return date < now.In(s.location()).Format(model.DateLayout)
}

func (s Schedule) Label(start time.Time) string {
	return start.Format(clockLayout) + "-" + start.Add(s.Duration).Format(clockLayout)
}

// Interval converts a slot label on date back to the time range it covers.
func (s Schedule) Interval(date, label string) (Interval, bool) {
	from, to, ok := strings.Cut(label, "-")
	if !ok {
		return Interval{}, false
	}
	day, err := time.ParseInLocation(model.DateLayout, date, s.location())
	if err != nil {
		return Interval{}, false
	}
	start, err := s.clock(day, strings.TrimSpace(from))
	if err != nil {
		return Interval{}, false
	}
	end, err := s.clock(day, strings.TrimSpace(to))
	if err != nil || !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Slots lists the labels of every slot on date that starts at or after now
// and does not overlap busy.
func (s Schedule) Slots(date string, busy []Interval, now time.Time) ([]string, error) {
	start, end, err := s.window(date)
	if err != nil {
		return nil, err
	}
	var labels []string
	for t := start; !t.Add(s.Duration).After(end); t = t.Add(s.Duration) {
		if t.Before(now) {
			continue
		}
		slot := Interval{Start: t, End: t.Add(s.Duration)}
		if !slot.overlapsAny(busy) {
			labels = append(labels, s.Label(t))
		}
	}
	return labels, nil
}
