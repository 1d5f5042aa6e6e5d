// Package shiftcal maps wall-clock instants onto the recurring daily shift
// schedule. It is the only place in the bot that does calendar or timezone
// arithmetic; everything downstream works with absolute instants.
package shiftcal

import (
	"fmt"
	"time"
)

type HourMinute struct {
	Hour   int
	Minute int
}

func (h HourMinute) String() string {
	return fmt.Sprintf("%02d:%02d", h.Hour, h.Minute)
}

// Schedule is one recurring daily shift option, e.g. 16:00-00:00.
// End at or before Start means the shift crosses midnight.
type Schedule struct {
	Start HourMinute
	End   HourMinute
	Label string
}

// Bounds is one concrete occurrence of a schedule: [Start, End).
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// PoolOptions is the fixed schedule table per pool.
var PoolOptions = map[string][]Schedule{
	"morning": {
		{Start: HourMinute{8, 0}, End: HourMinute{16, 0}, Label: "08:00-16:00"},
		{Start: HourMinute{10, 0}, End: HourMinute{18, 0}, Label: "10:00-18:00"},
	},
	"evening": {
		{Start: HourMinute{16, 0}, End: HourMinute{0, 0}, Label: "16:00-00:00"},
		{Start: HourMinute{18, 0}, End: HourMinute{2, 0}, Label: "18:00-02:00"},
		{Start: HourMinute{20, 0}, End: HourMinute{4, 0}, Label: "20:00-04:00"},
	},
	"night": {
		{Start: HourMinute{0, 0}, End: HourMinute{8, 0}, Label: "00:00-08:00"},
	},
}

// PoolKeys lists pools in display order.
var PoolKeys = []string{"morning", "evening", "night"}

// Calendar performs schedule math in a single fixed location.
type Calendar struct {
	loc *time.Location
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc}
}

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

func (c *Calendar) shiftForDay(dayStart time.Time, sch Schedule) Bounds {
	start := dayStart.Add(time.Duration(sch.Start.Hour)*time.Hour + time.Duration(sch.Start.Minute)*time.Minute)
	end := dayStart.Add(time.Duration(sch.End.Hour)*time.Hour + time.Duration(sch.End.Minute)*time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Bounds{Start: start, End: end}
}

// BoundsContaining returns the concrete occurrence of sch that contains now.
// Both "started today" and "started yesterday, still running" are probed so
// overnight shifts resolve correctly.
func (c *Calendar) BoundsContaining(now time.Time, sch Schedule) (Bounds, bool) {
	today := c.StartOfDay(now)
	b := c.shiftForDay(today, sch)
	if b.Contains(now) {
		return b, true
	}
	b = c.shiftForDay(today.AddDate(0, 0, -1), sch)
	if b.Contains(now) {
		return b, true
	}
	return Bounds{}, false
}

// MapToShift anchors a bare HH:MM onto the shift's calendar day, rolling
// forward one day when needed to stay at or after the shift start. Returns
// false if the mapped instant still falls outside [Start, End).
func (c *Calendar) MapToShift(hm HourMinute, b Bounds) (time.Time, bool) {
	day := c.StartOfDay(b.Start)
	cand := day.Add(time.Duration(hm.Hour)*time.Hour + time.Duration(hm.Minute)*time.Minute)
	if cand.Before(b.Start) {
		cand = cand.AddDate(0, 0, 1)
	}
	if cand.Before(b.Start) || !cand.Before(b.End) {
		return time.Time{}, false
	}
	return cand, true
}

// ActiveShiftForPool returns the first schedule option of the pool whose
// bounds contain now.
func (c *Calendar) ActiveShiftForPool(pool string, now time.Time) (Schedule, Bounds, bool) {
	for _, sch := range PoolOptions[pool] {
		if b, ok := c.BoundsContaining(now, sch); ok {
			return sch, b, true
		}
	}
	return Schedule{}, Bounds{}, false
}

// WeekRange returns Monday and Sunday (both start-of-day) of the week
// containing day.
func (c *Calendar) WeekRange(day time.Time) (time.Time, time.Time) {
	d := c.StartOfDay(day)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	monday := d.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// MonthRange returns the first and last day (both start-of-day) of the month
// containing day.
func (c *Calendar) MonthRange(day time.Time) (time.Time, time.Time) {
	d := c.StartOfDay(day)
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, c.loc)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// FloorToMinute truncates an epoch-milliseconds instant to the whole minute.
func FloorToMinute(ms int64) int64 {
	return ms / 60000 * 60000
}

// CeilToStep rounds t up to the next multiple of step minutes within the hour
// (seconds stripped first).
func CeilToStep(t time.Time, step time.Duration) time.Time {
	aligned := t.Truncate(time.Minute)
	if aligned.Before(t) {
		aligned = aligned.Add(time.Minute)
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return aligned
	}
	rem := aligned.Minute() % stepMin
	if rem == 0 {
		return aligned
	}
	return aligned.Add(time.Duration(stepMin-rem) * time.Minute)
}
