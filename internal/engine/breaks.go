package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"breakbot/internal/shiftcal"
	"breakbot/pkg/logx"
)

// StartBreak starts a reserved break. The matching reservation must be
// pending, for this pool and duration, and inside its 5-minute start window.
func (e *Engine) StartBreak(ctx context.Context, chatID int64, actor Actor, channelPool string, duration int) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		if !sc.inShift {
			return replyPrivatef("You are outside your shift hours right now.\nYour shift: %s", sc.schedule.Label)
		}
		if duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 10 or 20 minutes are available.")
		}
		u := sc.user
		if u.ActiveBreak != nil {
			return replyPrivate("You already have an active break. End it with /resume first.")
		}

		nowMs := now.UnixMilli()
		if u.LastBreakClosedAtMs != 0 {
			earliest := u.LastBreakClosedAtMs + interBreakCooldown.Milliseconds()
			if nowMs < earliest {
				return replyPrivatef("The wait between breaks is not over yet.\nTime left: %d min\nFor emergencies: /urgent",
					ceilMin(earliest-nowMs))
			}
		}

		var candidates []*Reservation
		for _, r := range u.Reservations {
			if r.Status != StatusPending || r.Pool != sc.pool || r.Duration != duration {
				continue
			}
			if nowMs >= r.StartAtMs && nowMs <= r.StartAtMs+startWindowMs {
				candidates = append(candidates, r)
			}
		}

		if len(candidates) == 0 {
			return e.explainMissedStart(u, sc.pool, duration, nowMs)
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].StartAtMs < candidates[j].StartAtMs })
		rez := candidates[0]

		// the same floor is applied when the break actually starts, so a
		// late start shortens the break rather than shifting it
		flooredNow := shiftcal.FloorToMinute(nowMs)
		if rez.EndAtMs-flooredNow < minEffectiveMin*60*1000 {
			return replyPrivatef("The reservation is about to lapse: at least %d min must remain to start.", minEffectiveMin)
		}

		if ok, reason := canStartBreakNow(c, sc.pool, duration, nowMs, actor.UserID); !ok {
			return replyPrivate(capitalize(reason) + ".\nYour reservation stays valid; start it once capacity frees up.")
		}

		rez.Status = StatusStarted
		rez.StartedAtMs = flooredNow
		u.ActiveBreak = &ActiveBreak{
			ID:               uuid.NewString(),
			Pool:             sc.pool,
			Duration:         duration,
			StartAtMs:        flooredNow,
			ScheduledEndAtMs: rez.EndAtMs,
			AutoCloseAtMs:    rez.EndAtMs + autoCloseGraceMs,
			RezID:            rez.ID,
		}

		effectiveMin := int((rez.EndAtMs - flooredNow) / 60000)
		msg := replyf("%s: break started, %d min, ends %s.\nWhen done: /resume",
			actor.DisplayName, duration, e.cal.FormatHM(rez.EndAtMs))
		if effectiveMin < duration {
			msg.Reply += fmt.Sprintf("\nNote: starting late shortened your break to %d min.", effectiveMin)
		}
		e.log.Info("break started",
			logUser(actor.UserID), logDur(duration), logPool(sc.pool),
			logx.String("ends", e.cal.FormatHM(rez.EndAtMs)))
		return msg
	})
}

// explainMissedStart tells the user why no reservation matched: wrong
// duration for a slot that is open now, a recently expired reservation, or
// no reservation at all.
func (e *Engine) explainMissedStart(u *UserRecord, pool string, duration int, nowMs int64) *Result {
	for _, r := range u.Reservations {
		if r.Status != StatusPending || r.Pool != pool {
			continue
		}
		if nowMs >= r.StartAtMs && nowMs <= r.StartAtMs+startWindowMs {
			return replyPrivatef("You have a %d min reservation for this slot.\nUse /break %d instead.", r.Duration, r.Duration)
		}
	}
	for _, r := range u.Reservations {
		if r.Status != StatusExpired || r.Pool != pool || r.Duration != duration {
			continue
		}
		expiredAt := r.ExpiredAtMs
		if expiredAt == 0 {
			expiredAt = r.StartAtMs + startWindowMs
		}
		if nowMs-expiredAt < 30*60*1000 {
			return replyPrivatef("Your %d min reservation lapsed: it was not started within %d minutes.\nThe right was returned; you can reserve again.",
				duration, startWindowMin)
		}
	}
	return replyPrivate("You have no active reservation.\nCreate one in the reservation topic with /reserve first.")
}

// StartEmergencyBreak starts an unreserved break immediately. It skips the
// cooldown and planning rules but still consumes a right and respects shift
// edges and live capacity.
func (e *Engine) StartEmergencyBreak(ctx context.Context, chatID int64, actor Actor, channelPool string, duration int) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		if !sc.inShift {
			return replyPrivatef("You are outside your shift hours right now.\nYour shift: %s", sc.schedule.Label)
		}
		if duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 10 or 20 minutes are available.")
		}
		u := sc.user
		if u.ActiveBreak != nil {
			return replyPrivate("You already have an active break. End it with /resume first.")
		}

		nowMs := now.UnixMilli()
		earliest := sc.bounds.Start.Add(edgeBlockMin * time.Minute)
		latestEnd := sc.bounds.End.Add(-edgeBlockMin * time.Minute)
		if now.Before(earliest) {
			return replyPrivate("Breaks cannot be taken in the first 30 minutes of a shift.")
		}
		if now.Add(time.Duration(duration) * time.Minute).After(latestEnd) {
			return replyPrivate("This break would run into the protected zone at the end of the shift.")
		}

		if u.FreeRights[duration] <= 0 {
			return replyPrivatef("You have no %d min break rights left.", duration)
		}
		if ok, reason := canStartBreakNow(c, sc.pool, duration, nowMs, actor.UserID); !ok {
			return replyPrivate(capitalize(reason) + ".")
		}

		u.FreeRights[duration]--
		clampRights(u)

		startMs := shiftcal.FloorToMinute(nowMs)
		endMs := startMs + int64(duration)*60*1000
		u.ActiveBreak = &ActiveBreak{
			ID:               uuid.NewString(),
			Pool:             sc.pool,
			Duration:         duration,
			StartAtMs:        startMs,
			ScheduledEndAtMs: endMs,
			AutoCloseAtMs:    endMs + autoCloseGraceMs,
			Emergency:        true,
		}

		e.log.Info("urgent break started",
			logUser(actor.UserID), logDur(duration), logPool(sc.pool))
		return replyf("%s: urgent break started, %d min, ends %s.\nWhen done: /resume",
			actor.DisplayName, duration, e.cal.FormatHM(endMs))
	})
}

// StartExtraBreak spends an admin-granted extra right. Only usable outside
// the actor's shift.
func (e *Engine) StartExtraBreak(ctx context.Context, chatID int64, actor Actor, channelPool string, duration int) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		if sc.inShift {
			return replyPrivatef("Extra breaks can only be used outside your shift.\nYour shift: %s", sc.schedule.Label)
		}
		if duration != 5 && duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 5, 10 or 20 minutes are available.")
		}
		u := sc.user
		if u.ActiveBreak != nil {
			return replyPrivate("You already have an active break. End it with /resume first.")
		}
		if u.ExtraRights[duration] <= 0 {
			return replyPrivatef("You have no %d min extra break right.\nExtra rights are granted by admins only.", duration)
		}

		u.ExtraRights[duration]--
		if u.ExtraRights[duration] < 0 {
			u.ExtraRights[duration] = 0
		}

		startMs := shiftcal.FloorToMinute(now.UnixMilli())
		endMs := startMs + int64(duration)*60*1000
		u.ActiveBreak = &ActiveBreak{
			ID:               uuid.NewString(),
			Pool:             sc.pool,
			Duration:         duration,
			StartAtMs:        startMs,
			ScheduledEndAtMs: endMs,
			AutoCloseAtMs:    endMs + autoCloseGraceMs,
			Emergency:        true,
			Extra:            true,
		}

		e.log.Info("extra break started",
			logUser(actor.UserID), logDur(duration), logPool(sc.pool))
		return replyf("%s: extra break started, %d min, ends %s.\nWhen done: /resume",
			actor.DisplayName, duration, e.cal.FormatHM(endMs))
	})
}

// EndBreak closes the actor's active break. Normal breaks arm the one-hour
// cooldown; urgent, extra and admin breaks do not.
func (e *Engine) EndBreak(ctx context.Context, chatID int64, actor Actor, channelPool string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		sc, errRes := e.resolveShift(c, actor, channelPool, now)
		if errRes != nil {
			return errRes
		}
		u := sc.user
		if u.ActiveBreak == nil {
			return replyPrivate("You have no active break.")
		}

		nowMs := now.UnixMilli()
		b := u.ActiveBreak
		lateMin := int((nowMs - b.ScheduledEndAtMs) / 60000)
		if lateMin < 0 {
			lateMin = 0
		}

		closeAtMs := shiftcal.FloorToMinute(nowMs)
		closeBreak(u, b, ClosedByUser, nowMs, e.cal.FormatDate(b.StartAtMs))
		u.ActiveBreak = nil
		if !b.Emergency && !b.Admin {
			u.LastBreakClosedAtMs = closeAtMs
		}

		e.log.Info("break ended",
			logUser(actor.UserID), logDur(b.Duration), logPool(b.Pool), logx.Int("late_min", lateMin))
		if lateMin > autoCloseGraceMin {
			return replyf("%s: break ended.\nOverrun: %d min", actor.DisplayName, lateMin)
		}
		return replyf("%s: break ended. Back to work.", actor.DisplayName)
	})
}
