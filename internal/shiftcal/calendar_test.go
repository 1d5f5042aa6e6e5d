package shiftcal

import (
	"testing"
	"time"
)

var utc = time.UTC

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, utc)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestBoundsContaining(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	evening := Schedule{Start: HourMinute{20, 0}, End: HourMinute{4, 0}}

	cases := []struct {
		name      string
		now       string
		wantStart string
		wantOK    bool
	}{
		{"inside before midnight", "2026-03-10 21:30", "2026-03-10 20:00", true},
		{"inside after midnight", "2026-03-11 01:15", "2026-03-10 20:00", true},
		{"at start", "2026-03-10 20:00", "2026-03-10 20:00", true},
		{"at end", "2026-03-11 04:00", "", false},
		{"outside", "2026-03-10 12:00", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, ok := cal.BoundsContaining(at(t, tc.now), evening)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && !b.Start.Equal(at(t, tc.wantStart)) {
				t.Fatalf("start = %v, want %v", b.Start, at(t, tc.wantStart))
			}
		})
	}
}

func TestMapToShift(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	evening := Schedule{Start: HourMinute{20, 0}, End: HourMinute{4, 0}}
	b, ok := cal.BoundsContaining(at(t, "2026-03-10 21:00"), evening)
	if !ok {
		t.Fatalf("no bounds")
	}

	cases := []struct {
		name   string
		hm     HourMinute
		want   string
		wantOK bool
	}{
		{"same day", HourMinute{22, 30}, "2026-03-10 22:30", true},
		{"rolls past midnight", HourMinute{1, 0}, "2026-03-11 01:00", true},
		{"before shift start", HourMinute{19, 0}, "", false},
		{"after shift end", HourMinute{5, 0}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := cal.MapToShift(tc.hm, b)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && !got.Equal(at(t, tc.want)) {
				t.Fatalf("got %v, want %v", got, at(t, tc.want))
			}
		})
	}
}

func TestActiveShiftForPool(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	sch, _, ok := cal.ActiveShiftForPool("evening", at(t, "2026-03-10 17:00"))
	if !ok {
		t.Fatalf("no active shift at 17:00")
	}
	if sch.Label != "16:00-00:00" {
		t.Fatalf("label = %q", sch.Label)
	}
	if _, _, ok := cal.ActiveShiftForPool("night", at(t, "2026-03-10 12:00")); ok {
		t.Fatalf("night pool should be idle at noon")
	}
}

func TestWeekAndMonthRange(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	mon, sun := cal.WeekRange(at(t, "2026-03-11 13:00")) // a Wednesday
	if !mon.Equal(at(t, "2026-03-09 00:00")) || !sun.Equal(at(t, "2026-03-15 00:00")) {
		t.Fatalf("week = %v..%v", mon, sun)
	}
	mon, sun = cal.WeekRange(at(t, "2026-03-15 02:00")) // a Sunday
	if !mon.Equal(at(t, "2026-03-09 00:00")) || !sun.Equal(at(t, "2026-03-15 00:00")) {
		t.Fatalf("sunday week = %v..%v", mon, sun)
	}
	first, last := cal.MonthRange(at(t, "2026-02-10 09:00"))
	if !first.Equal(at(t, "2026-02-01 00:00")) || !last.Equal(at(t, "2026-02-28 00:00")) {
		t.Fatalf("month = %v..%v", first, last)
	}
}

func TestCeilToStep(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"2026-03-10 21:02", "2026-03-10 21:05"},
		{"2026-03-10 21:05", "2026-03-10 21:05"},
		{"2026-03-10 21:56", "2026-03-10 22:00"},
	}
	for _, tc := range cases {
		got := CeilToStep(at(t, tc.in), 5*time.Minute)
		if !got.Equal(at(t, tc.want)) {
			t.Fatalf("CeilToStep(%s) = %v, want %v", tc.in, got, at(t, tc.want))
		}
	}
	withSecs := time.Date(2026, 3, 10, 21, 0, 30, 0, utc)
	if got := CeilToStep(withSecs, 5*time.Minute); !got.Equal(at(t, "2026-03-10 21:05")) {
		t.Fatalf("seconds not rounded up: %v", got)
	}
}

func TestDetectShift(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		pool string
		ok   bool
	}{
		{"dot separators", "Alex 20.00-04.00", "evening", true},
		{"colon separators", "Sam | 08:00-16:00", "morning", true},
		{"en dash", "Kim 16.00–00.00", "evening", true},
		{"unknown range", "Jo 09.00-17.00", "", false},
		{"no tag", "plain name", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool, _, ok := DetectShift(tc.in)
			if ok != tc.ok || pool != tc.pool {
				t.Fatalf("DetectShift(%q) = %q, %v", tc.in, pool, ok)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	now := at(t, "2026-03-11 13:00")
	if d, ok := cal.ParseDay("today", now); !ok || !d.Equal(at(t, "2026-03-11 00:00")) {
		t.Fatalf("today = %v, %v", d, ok)
	}
	if d, ok := cal.ParseDay("yesterday", now); !ok || !d.Equal(at(t, "2026-03-10 00:00")) {
		t.Fatalf("yesterday = %v, %v", d, ok)
	}
	if d, ok := cal.ParseDay("05.02.2026", now); !ok || !d.Equal(at(t, "2026-02-05 00:00")) {
		t.Fatalf("explicit = %v, %v", d, ok)
	}
	if _, ok := cal.ParseDay("2026-02-05", now); ok {
		t.Fatalf("iso date should be rejected")
	}
}

func TestFormatHMWithDayHint(t *testing.T) {
	t.Parallel()
	cal := New(utc)
	ref := at(t, "2026-03-10 23:00")
	if got := cal.FormatHMWithDayHint(at(t, "2026-03-10 23:30").UnixMilli(), ref); got != "23:30" {
		t.Fatalf("same day: %q", got)
	}
	if got := cal.FormatHMWithDayHint(at(t, "2026-03-11 01:30").UnixMilli(), ref); got != "01:30 (tomorrow)" {
		t.Fatalf("tomorrow: %q", got)
	}
	if got := cal.FormatHMWithDayHint(at(t, "2026-03-09 22:00").UnixMilli(), ref); got != "22:00 (yesterday)" {
		t.Fatalf("yesterday: %q", got)
	}
}
