package engine

import (
	"time"

	"breakbot/internal/shiftcal"
)

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// findAlternativeTimes scans forward in 5-minute steps for up to three slots
// that would pass every reservation rule for this user right now.
func (e *Engine) findAlternativeTimes(c *Community, u *UserRecord, pool string, duration int, now time.Time, bounds shiftcal.Bounds) []time.Time {
	earliest := maxTime(now, bounds.Start.Add(edgeBlockMin*time.Minute))
	latest := minTime(
		bounds.End.Add(-time.Duration(edgeBlockMin+duration)*time.Minute),
		now.Add(maxAhead),
	)
	if latest.Before(earliest) {
		return nil
	}

	var out []time.Time
	for cursor := shiftcal.CeilToStep(earliest, suggestStep); !cursor.After(latest) && len(out) < 3; cursor = cursor.Add(suggestStep) {
		if ok, _ := withinShiftEdges(cursor, duration, bounds); !ok {
			continue
		}
		startMs := cursor.UnixMilli()
		endMs := cursor.Add(time.Duration(duration) * time.Minute).UnixMilli()
		if hasRezStartConflict(u, startMs) {
			continue
		}
		if blocked, _, _ := breakCooldownConflict(u, startMs); blocked {
			continue
		}
		if ok, _ := canReserveSlot(c, pool, duration, startMs, endMs); ok {
			out = append(out, cursor)
		}
	}
	return out
}

// findSplitPlan looks for a pair of 10-minute slots spaced exactly 70
// minutes apart, offered when a 20-minute reservation cannot be admitted.
// Requires both short rights to be free.
func (e *Engine) findSplitPlan(c *Community, u *UserRecord, pool string, now time.Time, bounds shiftcal.Bounds, anchor time.Time) (time.Time, time.Time, bool) {
	if u.FreeRights[DurShort] < 2 {
		return time.Time{}, time.Time{}, false
	}

	earliest := maxTime(maxTime(now, anchor), bounds.Start.Add(edgeBlockMin*time.Minute))
	latest := minTime(
		bounds.End.Add(-time.Duration(edgeBlockMin+DurShort)*time.Minute),
		now.Add(maxAhead),
	)
	if latest.Before(earliest) {
		return time.Time{}, time.Time{}, false
	}

	horizon := now.Add(maxAhead)
	for cursor := shiftcal.CeilToStep(earliest, suggestStep); !cursor.After(latest); cursor = cursor.Add(suggestStep) {
		start1 := cursor
		start2 := start1.Add(pairGapMin * time.Minute)
		end2 := start2.Add(DurShort * time.Minute)

		if start2.After(horizon) {
			continue
		}
		if start2.Before(bounds.Start) || end2.After(bounds.End) {
			continue
		}
		if ok, _ := withinShiftEdges(start1, DurShort, bounds); !ok {
			continue
		}
		if ok, _ := withinShiftEdges(start2, DurShort, bounds); !ok {
			continue
		}

		s1, e1 := start1.UnixMilli(), start1.Add(DurShort*time.Minute).UnixMilli()
		s2, e2 := start2.UnixMilli(), end2.UnixMilli()
		if hasRezStartConflict(u, s1) || hasRezStartConflict(u, s2) {
			continue
		}
		if b1, _, _ := breakCooldownConflict(u, s1); b1 {
			continue
		}
		if b2, _, _ := breakCooldownConflict(u, s2); b2 {
			continue
		}
		if ok, _ := canReserveSlot(c, pool, DurShort, s1, e1); !ok {
			continue
		}
		if ok, _ := canReserveSlot(c, pool, DurShort, s2, e2); !ok {
			continue
		}
		return start1, start2, true
	}
	return time.Time{}, time.Time{}, false
}

func (e *Engine) formatAlternatives(alts []time.Time) string {
	if len(alts) == 0 {
		return ""
	}
	out := "\nAvailable times:"
	for i, a := range alts {
		if i > 0 {
			out += " /"
		}
		out += " " + e.cal.FormatHM(a.UnixMilli())
	}
	return out
}
