package availability

import (
	"slices"
	"testing"
	"time"
)

func TestScheduleSlotsSkipsBusy(t *testing.T) {
	s := Schedule{DayStart: "09:00", DayEnd: "10:00", Duration: 15 * time.Minute, Location: time.UTC}
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	got, err := s.Slots("2026-01-28", busy, day)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"09:00-09:15", "09:45-10:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScheduleSlotsSkipsPast(t *testing.T) {
	s := Schedule{DayStart: "09:00", DayEnd: "10:00", Duration: 15 * time.Minute, Location: time.UTC}
	now := time.Date(2026, 1, 28, 9, 31, 0, 0, time.UTC)

	got, err := s.Slots("2026-01-28", nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"09:45-10:00"}) {
		t.Fatalf("expected only 09:45-10:00, got %v", got)
	}
}

func TestScheduleSlotsUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	s := Schedule{DayStart: "09:00", DayEnd: "10:00", Duration: 30 * time.Minute, Location: loc}
	// 07:20 UTC is 09:20 local, so the 09:00 slot has already started.
	now := time.Date(2026, 1, 28, 7, 20, 0, 0, time.UTC)

	got, err := s.Slots("2026-01-28", nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"09:30-10:00"}) {
		t.Fatalf("unexpected slots %v", got)
	}
}

func TestScheduleSlotsRejectsBadDate(t *testing.T) {
	if _, err := DefaultSchedule().Slots("28/01/2026", nil, time.Time{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	base := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(30 * time.Minute)}
	b := Interval{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatal("adjacent intervals must not overlap")
	}
	c := Interval{Start: base.Add(29 * time.Minute), End: base.Add(31 * time.Minute)}
	if !a.Overlaps(c) || !b.Overlaps(c) {
		t.Fatal("expected overlap")
	}
}

func TestScheduleDayPassedUsesLocation(t *testing.T) {
	s := Schedule{DayStart: "09:00", DayEnd: "17:00", Duration: 30 * time.Minute, Location: time.FixedZone("UTC+2", 2*60*60)}
	// 23:00 UTC on the 1st is already the 2nd locally.
	now := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	cases := map[string]bool{
		"2025-03-01": true,
		"2025-03-02": false,
		"2025-03-03": false,
		"2024-12-31": true,
	}
	for date, want := range cases {
		if got := s.DayPassed(date, now); got != want {
			t.Errorf("DayPassed(%s) = %v, want %v", date, got, want)
		}
	}
}
