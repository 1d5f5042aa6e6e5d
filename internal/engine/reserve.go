package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"breakbot/internal/shiftcal"
	"breakbot/pkg/logx"
)

// CreateReservation books a break slot in advance. duration must be 10 or
// 20, timeStr is an HH:MM inside the actor's current shift. With wait set, a
// capacity rejection additionally queues the actor on the waitlist.
func (e *Engine) CreateReservation(ctx context.Context, chatID int64, actor Actor, channelPool string, duration int, timeStr string, wait bool) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		if !sc.inShift {
			return replyPrivatef("You are outside your shift hours right now.\nYour shift: %s", sc.schedule.Label)
		}
		if duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 10 or 20 minutes can be reserved.")
		}

		hm, ok := shiftcal.ParseHHMM(timeStr)
		if !ok {
			return replyPrivate("Invalid time format.\nExample: 13:40 or 13.40")
		}
		start, ok := e.cal.MapToShift(hm, sc.bounds)
		if !ok {
			return replyPrivate("That time is outside your shift.")
		}

		u := sc.user
		nowMs := now.UnixMilli()
		startMs := start.UnixMilli()

		if startMs < nowMs-pastStartSlack.Milliseconds() {
			return replyPrivate("Cannot reserve a time in the past.")
		}
		if startMs > nowMs+maxAhead.Milliseconds() {
			return replyPrivate("Reservations can be at most 2 hours ahead.")
		}

		if ok, reason := withinShiftEdges(start, duration, sc.bounds); !ok {
			alts := e.findAlternativeTimes(c, u, sc.pool, duration, now, sc.bounds)
			return replyPrivate(capitalize(reason) + "." + e.formatAlternatives(alts))
		}

		if u.FreeRights[duration] <= 0 {
			return replyPrivatef("You have no %d min break rights left.", duration)
		}

		if last := latestSelfCreated(u); last != nil {
			elapsed := nowMs - last.CreatedAtMs
			if elapsed < creationCooldown.Milliseconds() {
				waitMin := ceilMin(creationCooldown.Milliseconds() - elapsed)
				return replyPrivatef("You must wait 30 minutes between reservations.\nTime left: %d min", waitMin)
			}
		}

		for _, r := range u.Reservations {
			if r.Status != StatusPending && r.Status != StatusStarted {
				continue
			}
			diff := r.StartAtMs - startMs
			if diff < 0 {
				diff = -diff
			}
			if diff < interBreakCooldown.Milliseconds() {
				needed := 60 - diff/60000
				alts := e.findAlternativeTimes(c, u, sc.pool, duration, now, sc.bounds)
				return replyPrivatef("Reservation starts must be at least 1 hour apart.\nGap needed: about %d more min%s",
					needed, e.formatAlternatives(alts))
			}
		}

		if blocked, _, leftMin := breakCooldownConflict(u, startMs); blocked {
			alts := e.findAlternativeTimes(c, u, sc.pool, duration, now, sc.bounds)
			return replyPrivatef("A 1 hour wait is required after your last break.\nTime left: about %d min%s",
				leftMin, e.formatAlternatives(alts))
		}

		endMs := start.Add(time.Duration(duration) * time.Minute).UnixMilli()
		if ok, reason := canReserveSlot(c, sc.pool, duration, startMs, endMs); !ok {
			var msg strings.Builder
			msg.WriteString(capitalize(reason) + ".")
			alts := e.findAlternativeTimes(c, u, sc.pool, duration, now, sc.bounds)
			msg.WriteString(e.formatAlternatives(alts))
			if duration == DurLong {
				if s1, s2, ok := e.findSplitPlan(c, u, sc.pool, now, sc.bounds, start); ok {
					msg.WriteString(fmt.Sprintf("\nAlternative: split into 10 min at %s plus 10 min at %s.",
						e.cal.FormatHM(s1.UnixMilli()), e.cal.FormatHM(s2.UnixMilli())))
				}
			}
			if wait {
				if !onWaitlist(c, actor.UserID, sc.pool, duration, startMs) {
					c.Waitlist = append(c.Waitlist, &WaitlistEntry{
						ID:          uuid.NewString(),
						UserID:      actor.UserID,
						Pool:        sc.pool,
						Duration:    duration,
						StartAtMs:   startMs,
						EndAtMs:     endMs,
						CreatedAtMs: nowMs,
					})
				}
				msg.WriteString("\nYou were added to the waitlist and will be notified when the slot opens up.")
			}
			return replyPrivate(msg.String())
		}

		u.FreeRights[duration]--
		clampRights(u)
		u.Reservations = append(u.Reservations, &Reservation{
			ID:          uuid.NewString(),
			Pool:        sc.pool,
			Duration:    duration,
			StartAtMs:   startMs,
			EndAtMs:     endMs,
			CreatedAtMs: nowMs,
			Status:      StatusPending,
		})

		startText := e.cal.FormatHMWithDayHint(startMs, now)
		e.log.Info("reservation created",
			logUser(actor.UserID), logDur(duration), logPool(sc.pool), logx.String("start", startText))
		return replyf("%s: reservation confirmed, %d min at %s.\nStart it with /break %d.",
			actor.DisplayName, duration, startText, duration)
	})
}

// CancelReservations cancels the actor's pending reservations: the earliest
// one by default, the one at timeStr when given, or every one with all set.
// Self-created reservations refund their right.
func (e *Engine) CancelReservations(ctx context.Context, chatID int64, actor Actor, channelPool string, all bool, timeStr string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		u := sc.user

		targets, errRes := e.selectCancelTargets(u, sc.pool, all, timeStr, now)
		if errRes != nil {
			return errRes
		}

		refunded := cancelAll(u, targets, now.UnixMilli())

		label := cancelLabel(e.cal, targets, all, now)
		suffix := ""
		if refunded {
			suffix = " Rights were returned."
		}
		e.log.Info("reservations cancelled",
			logUser(actor.UserID), logx.Int("count", len(targets)), logPool(sc.pool))
		return replyf("%s: %s cancelled.%s", actor.DisplayName, label, suffix)
	})
}

func (e *Engine) selectCancelTargets(u *UserRecord, pool string, all bool, timeStr string, now time.Time) ([]*Reservation, *Result) {
	var pending []*Reservation
	for _, r := range u.Reservations {
		if r.Status == StatusPending && r.Pool == pool {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, replyPrivate("You have no active reservation to cancel.")
	}

	switch {
	case all:
		return pending, nil
	case timeStr != "":
		hm, ok := shiftcal.ParseHHMM(timeStr)
		if !ok {
			return nil, replyPrivate("Invalid time format.\nExample: 13:40 or 13.40")
		}
		want := hm.String()
		var targets []*Reservation
		for _, r := range pending {
			if e.cal.FormatHM(r.StartAtMs) == want {
				targets = append(targets, r)
			}
		}
		if len(targets) == 0 {
			return nil, replyPrivatef("No active reservation found at %s.", want)
		}
		return targets, nil
	default:
		sort.Slice(pending, func(i, j int) bool { return pending[i].StartAtMs < pending[j].StartAtMs })
		return pending[:1], nil
	}
}

func cancelAll(u *UserRecord, targets []*Reservation, nowMs int64) (refunded bool) {
	for _, r := range targets {
		r.Status = StatusCancelled
		r.CancelledAtMs = nowMs
		if !r.AdminCreated {
			u.FreeRights[r.Duration]++
			clampRights(u)
			refunded = true
		}
	}
	return refunded
}

func cancelLabel(cal *shiftcal.Calendar, targets []*Reservation, all bool, now time.Time) string {
	if all {
		return fmt.Sprintf("%d reservations", len(targets))
	}
	r := targets[0]
	return fmt.Sprintf("the %d min reservation at %s", r.Duration, cal.FormatHMWithDayHint(r.StartAtMs, now))
}

// ListReservations shows the actor's pending reservations plus the pool's
// live occupancy and upcoming slots.
func (e *Engine) ListReservations(ctx context.Context, chatID int64, actor Actor, channelPool string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		u := sc.user
		pool := sc.pool

		var lines []string
		lines = append(lines, "Your reservations:")
		var mine []*Reservation
		for _, r := range u.Reservations {
			if r.Status == StatusPending && r.Pool == pool {
				mine = append(mine, r)
			}
		}
		sort.Slice(mine, func(i, j int) bool { return mine[i].StartAtMs < mine[j].StartAtMs })
		if len(mine) == 0 {
			lines = append(lines, "  (none)")
		}
		for _, r := range mine {
			lines = append(lines, fmt.Sprintf("  %d min at %s", r.Duration, e.cal.FormatHMWithDayHint(r.StartAtMs, now)))
		}

		var active10, active20, pending10, pending20 []string
		for uid, other := range c.Users {
			if b := other.ActiveBreak; b != nil && b.Pool == pool {
				kind := ""
				if b.Extra {
					kind = " extra"
				} else if b.Emergency {
					kind = " urgent"
				}
				entry := fmt.Sprintf("%s (%d min%s until %s)", c.userName(uid), b.Duration, kind, e.cal.FormatHM(b.ScheduledEndAtMs))
				if b.Duration == DurShort {
					active10 = append(active10, entry)
				} else if b.Duration == DurLong {
					active20 = append(active20, entry)
				}
			}
			for _, r := range other.Reservations {
				if r.Pool != pool || r.Status != StatusPending {
					continue
				}
				entry := fmt.Sprintf("%s (%d min at %s)", c.userName(uid), r.Duration, e.cal.FormatHM(r.StartAtMs))
				if r.Duration == DurShort {
					pending10 = append(pending10, entry)
				} else if r.Duration == DurLong {
					pending20 = append(pending20, entry)
				}
			}
		}
		sort.Strings(active10)
		sort.Strings(active20)
		sort.Strings(pending10)
		sort.Strings(pending20)

		lines = append(lines, "", "Pool occupancy (active):")
		lines = append(lines, "  10 min: "+listOrEmpty(active10)+fmt.Sprintf("  [max %d]", capacityLimit[DurShort]))
		lines = append(lines, "  20 min: "+listOrEmpty(active20)+fmt.Sprintf("  [max %d]", capacityLimit[DurLong]))
		lines = append(lines, "", "Upcoming reservations:")
		lines = append(lines, "  10 min: "+listOrEmpty(capped(pending10, 10)))
		lines = append(lines, "  20 min: "+listOrEmpty(capped(pending20, 10)))

		waiting := 0
		for _, w := range c.Waitlist {
			if w.Pool == pool {
				waiting++
			}
		}
		if waiting > 0 {
			lines = append(lines, "", fmt.Sprintf("Waitlist: %d request(s)", waiting))
		}

		return replyPrivate(strings.Join(lines, "\n"))
	})
}

// RightsStatus reports the actor's remaining rights, active break and
// cooldown state.
func (e *Engine) RightsStatus(ctx context.Context, chatID int64, actor Actor, channelPool string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		u := sc.user
		pool := sc.pool

		free10 := u.FreeRights[DurShort]
		free20 := u.FreeRights[DurLong]
		reserved10, reserved20 := 0, 0
		for _, r := range u.Reservations {
			if r.Status != StatusPending || r.Pool != pool {
				continue
			}
			if r.Duration == DurShort {
				reserved10++
			} else if r.Duration == DurLong {
				reserved20++
			}
		}
		used10 := defaultFreeRights[DurShort] - free10 - reserved10
		used20 := defaultFreeRights[DurLong] - free20 - reserved20
		if used10 < 0 {
			used10 = 0
		}
		if used20 < 0 {
			used20 = 0
		}

		var lines []string
		lines = append(lines, fmt.Sprintf("Free: 10 min x%d, 20 min x%d", free10, free20))
		lines = append(lines, fmt.Sprintf("Reserved: 10 min x%d, 20 min x%d", reserved10, reserved20))
		lines = append(lines, fmt.Sprintf("Used: 10 min x%d, 20 min x%d", used10, used20))

		var extra []string
		for _, d := range []int{5, DurShort, DurLong} {
			if n := u.ExtraRights[d]; n > 0 {
				extra = append(extra, fmt.Sprintf("%d min x%d", d, n))
			}
		}
		if len(extra) > 0 {
			lines = append(lines, "", "Extra rights (outside shift, /extra): "+strings.Join(extra, ", "))
		}

		if b := u.ActiveBreak; b != nil {
			kind := ""
			if b.Extra {
				kind = " (extra)"
			} else if b.Emergency {
				kind = " (urgent)"
			}
			lines = append(lines, "", fmt.Sprintf("Active break: %d min, ends %s%s", b.Duration, e.cal.FormatHM(b.ScheduledEndAtMs), kind))
		} else {
			lines = append(lines, "", "Active break: none")
		}

		if u.LastBreakClosedAtMs != 0 {
			earliest := u.LastBreakClosedAtMs + interBreakCooldown.Milliseconds()
			if now.UnixMilli() < earliest {
				lines = append(lines, fmt.Sprintf("Next break: at %s earliest", e.cal.FormatHMWithDayHint(earliest, now)))
			} else {
				lines = append(lines, "Next break: no wait")
			}
		} else {
			lines = append(lines, "Next break: no wait")
		}

		if !sc.inShift {
			lines = append(lines, fmt.Sprintf("You are outside your shift (%s).", sc.schedule.Label))
		}

		return replyPrivate(strings.Join(lines, "\n"))
	})
}

func latestSelfCreated(u *UserRecord) *Reservation {
	var latest *Reservation
	for _, r := range u.Reservations {
		if r.CreatedAtMs == 0 || r.AdminCreated {
			continue
		}
		if r.Status != StatusPending && r.Status != StatusStarted {
			continue
		}
		if latest == nil || r.CreatedAtMs > latest.CreatedAtMs {
			latest = r
		}
	}
	return latest
}

func onWaitlist(c *Community, userID, pool string, duration int, startAtMs int64) bool {
	for _, w := range c.Waitlist {
		if w.UserID == userID && w.Pool == pool && w.Duration == duration && w.StartAtMs == startAtMs {
			return true
		}
	}
	return false
}

func ceilMin(ms int64) int {
	return int((ms + 59999) / 60000)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func listOrEmpty(entries []string) string {
	if len(entries) == 0 {
		return "(none)"
	}
	return strings.Join(entries, ", ")
}

func capped(entries []string, n int) []string {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
