package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"breakbot/internal/shiftcal"
	"breakbot/pkg/logx"
)

// Target identifies the user an admin command acts on.
type Target struct {
	UserID      string
	DisplayName string
}

func (c *Community) ensureTarget(t Target) *UserRecord {
	u := c.ensureUser(t.UserID)
	if t.DisplayName != "" {
		u.DisplayName = t.DisplayName
	}
	return u
}

// GrantExtraRight gives the target one extra break right of the given
// duration, usable outside their shift with /extra. Extra rights lapse at
// the next daily reset.
func (e *Engine) GrantExtraRight(ctx context.Context, chatID int64, admin Actor, target Target, duration int) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		if duration != 5 && duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 5, 10 or 20 minutes can be granted.")
		}
		u := c.ensureTarget(target)
		u.ExtraRights[duration]++

		e.log.Info("admin granted extra right",
			logx.String("admin", admin.UserID), logUser(target.UserID), logDur(duration))
		return replyPrivatef("Granted %s one extra %d min break right.\nTotal %d min extra rights: %d\nUsable outside their shift with /extra.",
			c.userName(target.UserID), duration, duration, u.ExtraRights[duration])
	})
}

// RevokeRight takes one right of the given duration from the target. kind is
// "normal" for the per-shift entitlement or "extra" for granted rights.
func (e *Engine) RevokeRight(ctx context.Context, chatID int64, admin Actor, target Target, duration int, kind string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		u := c.ensureTarget(target)

		switch kind {
		case "normal":
			if u.FreeRights[duration] <= 0 {
				return replyPrivatef("%s already has 0 normal %d min rights.", c.userName(target.UserID), duration)
			}
			u.FreeRights[duration]--
			clampRights(u)
			e.log.Info("admin revoked normal right",
				logx.String("admin", admin.UserID), logUser(target.UserID), logDur(duration))
			return replyPrivatef("Took one normal %d min break right from %s.\nRemaining normal %d min rights: %d",
				duration, c.userName(target.UserID), duration, u.FreeRights[duration])
		case "extra":
			if u.ExtraRights[duration] <= 0 {
				return replyPrivatef("%s already has 0 extra %d min rights.", c.userName(target.UserID), duration)
			}
			u.ExtraRights[duration]--
			e.log.Info("admin revoked extra right",
				logx.String("admin", admin.UserID), logUser(target.UserID), logDur(duration))
			return replyPrivatef("Took one extra %d min break right from %s.\nRemaining extra %d min rights: %d",
				duration, c.userName(target.UserID), duration, u.ExtraRights[duration])
		default:
			return replyPrivate("Unknown right kind: use normal or extra.")
		}
	})
}

// ForceEndBreak closes the target's active break on the admin's behalf.
func (e *Engine) ForceEndBreak(ctx context.Context, chatID int64, admin Actor, target Target) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		u := c.ensureTarget(target)
		if u.ActiveBreak == nil {
			return replyPrivatef("%s has no active break.", c.userName(target.UserID))
		}

		b := u.ActiveBreak
		closeBreak(u, b, ClosedByAdmin, now.UnixMilli(), e.cal.FormatDate(b.StartAtMs))
		u.ActiveBreak = nil
		if !b.Emergency && !b.Admin {
			u.LastBreakClosedAtMs = now.UnixMilli()
		}

		kind := "normal"
		if b.Extra {
			kind = "extra"
		} else if b.Emergency {
			kind = "urgent"
		}
		e.log.Info("admin ended break",
			logx.String("admin", admin.UserID), logUser(target.UserID), logDur(b.Duration), logPool(b.Pool))

		res := replyPrivatef("Ended the %d min break of %s.", b.Duration, c.userName(target.UserID))
		res.Notices = append(res.Notices, Notification{
			Pool: b.Pool, Kind: ChanBreak,
			Text: fmt.Sprintf("%s: break ended by an admin (%d min %s). Admin: %s",
				c.userName(target.UserID), b.Duration, kind, admin.DisplayName),
		})
		return res
	})
}

// AdminCreateReservation books a slot for the target without consuming a
// right. Cooldown and entitlement checks are skipped; shift edges and
// capacity still apply.
func (e *Engine) AdminCreateReservation(ctx context.Context, chatID int64, admin Actor, target Target, pool string, duration int, timeStr string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		if duration != DurShort && duration != DurLong {
			return replyPrivate("Invalid duration: only 10 or 20 minutes can be reserved.")
		}
		hm, ok := shiftcal.ParseHHMM(timeStr)
		if !ok {
			return replyPrivate("Invalid time format.\nExample: 13:40 or 13.40")
		}
		_, bounds, ok := e.cal.ActiveShiftForPool(pool, now)
		if !ok {
			return replyPrivatef("The %s pool has no active shift right now.", poolLabel(pool))
		}
		start, ok := e.cal.MapToShift(hm, bounds)
		if !ok {
			return replyPrivate("That time is outside the shift.")
		}

		nowMs := now.UnixMilli()
		startMs := start.UnixMilli()
		if startMs < nowMs-pastStartSlack.Milliseconds() {
			return replyPrivate("Cannot reserve a time in the past.")
		}
		if ok, reason := withinShiftEdges(start, duration, bounds); !ok {
			return replyPrivate(capitalize(reason) + ".")
		}

		endMs := start.Add(time.Duration(duration) * time.Minute).UnixMilli()
		if ok, reason := canReserveSlot(c, pool, duration, startMs, endMs); !ok {
			return replyPrivate("Capacity is full: " + reason + ".")
		}

		u := c.ensureTarget(target)
		u.Reservations = append(u.Reservations, &Reservation{
			ID:           uuid.NewString(),
			Pool:         pool,
			Duration:     duration,
			StartAtMs:    startMs,
			EndAtMs:      endMs,
			CreatedAtMs:  nowMs,
			Status:       StatusPending,
			AdminCreated: true,
		})

		startText := e.cal.FormatHMWithDayHint(startMs, now)
		e.log.Info("admin created reservation",
			logx.String("admin", admin.UserID), logUser(target.UserID), logDur(duration), logPool(pool))

		res := replyPrivatef("Created a %d min reservation at %s for %s.\nNo right was consumed.",
			duration, startText, c.userName(target.UserID))
		res.Notices = append(res.Notices, Notification{
			Pool: pool, Kind: ChanRez,
			Text: fmt.Sprintf("%s: an admin reserved %d min at %s for you.\nStart it with /break %d. Admin: %s",
				c.userName(target.UserID), duration, startText, duration, admin.DisplayName),
		})
		return res
	})
}

// AdminCancelReservations cancels the target's pending reservations with the
// same selection rules as the user-facing cancel.
func (e *Engine) AdminCancelReservations(ctx context.Context, chatID int64, admin Actor, target Target, all bool, timeStr string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		u := c.ensureTarget(target)

		var pending []*Reservation
		for _, r := range u.Reservations {
			if r.Status == StatusPending {
				pending = append(pending, r)
			}
		}
		if len(pending) == 0 {
			return replyPrivatef("%s has no active reservation to cancel.", c.userName(target.UserID))
		}

		var targets []*Reservation
		switch {
		case all:
			targets = pending
		case timeStr != "":
			hm, ok := shiftcal.ParseHHMM(timeStr)
			if !ok {
				return replyPrivate("Invalid time format.\nExample: 13:40 or 13.40")
			}
			want := hm.String()
			for _, r := range pending {
				if e.cal.FormatHM(r.StartAtMs) == want {
					targets = append(targets, r)
				}
			}
			if len(targets) == 0 {
				return replyPrivatef("No reservation of %s found at %s.", c.userName(target.UserID), want)
			}
		default:
			earliest := pending[0]
			for _, r := range pending[1:] {
				if r.StartAtMs < earliest.StartAtMs {
					earliest = r
				}
			}
			targets = []*Reservation{earliest}
		}

		refunded := cancelAll(u, targets, now.UnixMilli())

		byPool := map[string][]*Reservation{}
		for _, r := range targets {
			byPool[r.Pool] = append(byPool[r.Pool], r)
		}

		e.log.Info("admin cancelled reservations",
			logx.String("admin", admin.UserID), logUser(target.UserID), logx.Int("count", len(targets)))

		suffix := ""
		if refunded {
			suffix = " Rights were returned."
		}
		res := replyPrivatef("Cancelled %s for %s.%s",
			cancelLabel(e.cal, targets, all, now), c.userName(target.UserID), suffix)
		for pool, list := range byPool {
			desc := ""
			for i, r := range list {
				if i > 0 {
					desc += ", "
				}
				desc += fmt.Sprintf("%d min at %s", r.Duration, e.cal.FormatHM(r.StartAtMs))
			}
			res.Notices = append(res.Notices, Notification{
				Pool: pool, Kind: ChanRez,
				Text: fmt.Sprintf("%s: reservation(s) cancelled by an admin: %s. Admin: %s",
					c.userName(target.UserID), desc, admin.DisplayName),
			})
		}
		return res
	})
}

// StartAdminBreak puts the admin on a break outside the pool capacity
// system. Any duration is accepted.
func (e *Engine) StartAdminBreak(ctx context.Context, chatID int64, admin Actor, duration int) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		if duration <= 0 {
			return replyPrivate("Invalid duration.")
		}
		u := c.ensureTarget(Target{UserID: admin.UserID, DisplayName: admin.DisplayName})
		if u.ActiveBreak != nil {
			endCmd := "/resume"
			if u.ActiveBreak.Admin {
				endCmd = "/admin resume"
			}
			return replyPrivatef("You already have an active break. End it with %s first.", endCmd)
		}

		startMs := shiftcal.FloorToMinute(now.UnixMilli())
		endMs := startMs + int64(duration)*60*1000
		u.ActiveBreak = &ActiveBreak{
			ID:               uuid.NewString(),
			Pool:             AdminPool,
			Duration:         duration,
			StartAtMs:        startMs,
			ScheduledEndAtMs: endMs,
			AutoCloseAtMs:    endMs + autoCloseGraceMs,
			Admin:            true,
		}

		endText := e.cal.FormatHM(endMs)
		e.log.Info("admin break started", logx.String("admin", admin.UserID), logDur(duration))

		res := replyPrivatef("Break started, %d min, ends %s.", duration, endText)
		res.Notices = append(res.Notices, Notification{
			Pool: AdminPool, Kind: ChanBreak,
			Text: fmt.Sprintf("%s: admin break started, %d min, ends %s.\nEnd it with /admin resume.",
				admin.DisplayName, duration, endText),
		})
		return res
	})
}

// EndAdminBreak closes the admin's own admin break.
func (e *Engine) EndAdminBreak(ctx context.Context, chatID int64, admin Actor) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		u := c.ensureTarget(Target{UserID: admin.UserID, DisplayName: admin.DisplayName})
		if u.ActiveBreak == nil || !u.ActiveBreak.Admin {
			return replyPrivate("You have no active admin break.")
		}

		b := u.ActiveBreak
		nowMs := now.UnixMilli()
		lateMin := int((nowMs - b.ScheduledEndAtMs) / 60000)
		if lateMin < 0 {
			lateMin = 0
		}
		closeBreak(u, b, ClosedByUser, nowMs, e.cal.FormatDate(b.StartAtMs))
		u.ActiveBreak = nil

		e.log.Info("admin break ended",
			logx.String("admin", admin.UserID), logDur(b.Duration), logx.Int("late_min", lateMin))

		text := fmt.Sprintf("%s: admin break ended.", admin.DisplayName)
		replyText := "Break ended."
		if lateMin > autoCloseGraceMin {
			text += fmt.Sprintf(" Overrun: %d min", lateMin)
			replyText += fmt.Sprintf(" Overrun: %d min", lateMin)
		}
		res := replyPrivate(replyText)
		res.Notices = append(res.Notices, Notification{Pool: AdminPool, Kind: ChanBreak, Text: text})
		return res
	})
}
