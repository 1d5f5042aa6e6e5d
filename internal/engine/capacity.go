package engine

import (
	"fmt"
	"time"

	"breakbot/internal/shiftcal"
)

type interval struct {
	userID    string
	startAtMs int64
	endAtMs   int64
}

func activeBreakIntervals(c *Community, pool string, duration int) []interval {
	var out []interval
	for uid, u := range c.Users {
		b := u.ActiveBreak
		if b == nil || b.Pool != pool || b.Duration != duration {
			continue
		}
		out = append(out, interval{userID: uid, startAtMs: b.StartAtMs, endAtMs: b.ScheduledEndAtMs})
	}
	return out
}

func pendingRezIntervals(c *Community, pool string, duration int) []interval {
	var out []interval
	for uid, u := range c.Users {
		for _, r := range u.Reservations {
			if r.Pool != pool || r.Duration != duration || r.Status != StatusPending {
				continue
			}
			out = append(out, interval{userID: uid, startAtMs: r.StartAtMs, endAtMs: r.EndAtMs})
		}
	}
	return out
}

// canReserveSlot checks planned capacity for a new interval: active breaks
// and pending reservations of the same pool and duration count against the
// limit at every minute of the candidate slot.
func canReserveSlot(c *Community, pool string, duration int, startAtMs, endAtMs int64) (bool, string) {
	limit := capacityLimit[duration]
	actives := activeBreakIntervals(c, pool, duration)
	rezs := pendingRezIntervals(c, pool, duration)

	for t := startAtMs; t < endAtMs; t += 60000 {
		count := 1 // the candidate slot itself
		for _, it := range actives {
			if t >= it.startAtMs && t < it.endAtMs {
				count++
			}
		}
		for _, it := range rezs {
			if t >= it.startAtMs && t < it.endAtMs {
				count++
			}
		}
		if count > limit {
			return false, fmt.Sprintf("the %d min capacity is full (%d/%d)", duration, limit, limit)
		}
	}
	return true, ""
}

// canStartBreakNow checks live capacity at the moment a break starts. Only
// active breaks count, through their auto-close deadline, so an overrun that
// has not been closed still occupies its slot.
func canStartBreakNow(c *Community, pool string, duration int, nowMs int64, exceptUserID string) (bool, string) {
	limit := capacityLimit[duration]
	active := 0
	for uid, u := range c.Users {
		if uid == exceptUserID {
			continue
		}
		b := u.ActiveBreak
		if b == nil || b.Pool != pool || b.Duration != duration {
			continue
		}
		if nowMs >= b.StartAtMs && nowMs < b.AutoCloseAtMs {
			active++
		}
	}
	if active >= limit {
		return false, fmt.Sprintf("the %d min pool is busy right now (active %d/%d)", duration, active, limit)
	}
	return true, ""
}

// withinShiftEdges enforces the protected zones at both ends of a shift: no
// break may start in the first 30 minutes or run into the last 30.
func withinShiftEdges(start time.Time, duration int, bounds shiftcal.Bounds) (bool, string) {
	earliest := bounds.Start.Add(edgeBlockMin * time.Minute)
	latestEnd := bounds.End.Add(-edgeBlockMin * time.Minute)
	end := start.Add(time.Duration(duration) * time.Minute)
	if start.Before(earliest) {
		return false, "breaks cannot be scheduled in the first 30 minutes of a shift"
	}
	if end.After(latestEnd) {
		return false, "this break would run into the protected zone at the end of the shift"
	}
	return true, ""
}

// hasRezStartConflict reports whether the user already holds a pending
// reservation starting within one hour of the candidate start.
func hasRezStartConflict(u *UserRecord, candidateStartMs int64) bool {
	for _, r := range u.Reservations {
		if r.Status != StatusPending {
			continue
		}
		diff := r.StartAtMs - candidateStartMs
		if diff < 0 {
			diff = -diff
		}
		if diff < interBreakCooldown.Milliseconds() {
			return true
		}
	}
	return false
}

// breakCooldownConflict reports whether the candidate start falls inside the
// one-hour cooldown after the user's last normal break. leftMin is the
// rounded-up wait remaining when blocked.
func breakCooldownConflict(u *UserRecord, candidateStartMs int64) (blocked bool, earliestMs int64, leftMin int) {
	if u.LastBreakClosedAtMs == 0 {
		return false, 0, 0
	}
	earliestMs = u.LastBreakClosedAtMs + interBreakCooldown.Milliseconds()
	if candidateStartMs >= earliestMs {
		return false, 0, 0
	}
	leftMin = int((earliestMs - candidateStartMs + 59999) / 60000)
	return true, earliestMs, leftMin
}
