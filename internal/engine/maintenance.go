package engine

import (
	"fmt"
	"time"

	"breakbot/pkg/logx"
)

// maintain applies every time-driven correction to the community state:
// expiring unstarted reservations, auto-closing overrun breaks, pruning old
// records, servicing the waitlist and resetting daily extra rights. It runs
// before every operation and on the periodic sweep, and is idempotent for a
// fixed now.
func (e *Engine) maintain(c *Community, now time.Time) []Notification {
	nowMs := now.UnixMilli()
	var notices []Notification

	// 1) expire pending reservations not started within the window
	for uid, u := range c.Users {
		for _, r := range u.Reservations {
			if r.Status != StatusPending {
				continue
			}
			expireAt := r.StartAtMs + startWindowMs
			if nowMs < expireAt {
				continue
			}
			r.Status = StatusExpired
			r.ExpiredAtMs = expireAt

			refundNote := ""
			if !r.AdminCreated {
				u.FreeRights[r.Duration]++
				clampRights(u)
				refundNote = " The right was returned."
			}
			e.log.Info("reservation expired",
				logUser(uid), logDur(r.Duration), logPool(r.Pool))
			notices = append(notices, Notification{
				Pool: r.Pool, Kind: ChanRez,
				Text: fmt.Sprintf("%s: the %d min reservation at %s expired (not started within %d minutes).%s",
					c.userName(uid), r.Duration, e.cal.FormatHM(r.StartAtMs), startWindowMin, refundNote),
			})
		}

		// prune terminal entries after 24h, and started entries whose break
		// record is long gone
		kept := u.Reservations[:0]
		for _, r := range u.Reservations {
			switch r.Status {
			case StatusExpired, StatusCancelled, StatusCompleted:
				t := r.ExpiredAtMs
				if t == 0 {
					t = r.CancelledAtMs
				}
				if t == 0 {
					t = r.StartAtMs
				}
				if nowMs < t+rezRetention.Milliseconds() {
					kept = append(kept, r)
				}
			case StatusStarted:
				if nowMs < r.EndAtMs+rezRetention.Milliseconds() {
					kept = append(kept, r)
				}
			default:
				kept = append(kept, r)
			}
		}
		u.Reservations = kept
	}

	// 2) auto-close breaks past their grace deadline
	for uid, u := range c.Users {
		b := u.ActiveBreak
		if b == nil {
			continue
		}
		dueCloseAt := b.ScheduledEndAtMs + autoCloseGraceMs
		if nowMs < dueCloseAt {
			continue
		}
		lateMin := int((nowMs - b.ScheduledEndAtMs) / 60000)

		closeBreak(u, b, ClosedByAuto, nowMs, e.cal.FormatDate(b.StartAtMs))
		u.ActiveBreak = nil
		if !b.Emergency && !b.Admin {
			u.LastBreakClosedAtMs = dueCloseAt
		}

		e.log.Info("break auto-closed",
			logUser(uid), logDur(b.Duration), logPool(b.Pool), logx.Int("late_min", lateMin))
		pool := b.Pool
		if b.Admin {
			pool = AdminPool
		}
		notices = append(notices, Notification{
			Pool: pool, Kind: ChanBreak,
			Text: fmt.Sprintf("%s: break closed automatically. Overrun: %d min.", c.userName(uid), lateMin),
		})
	}

	// 3) break log retention
	for _, u := range c.Users {
		if len(u.BreakLog) == 0 {
			continue
		}
		kept := u.BreakLog[:0]
		for _, l := range u.BreakLog {
			if nowMs-l.EndAtMs < logRetention.Milliseconds() {
				kept = append(kept, l)
			}
		}
		u.BreakLog = kept
	}

	// 4) waitlist: drop entries whose start has passed, then notify anyone
	// whose slot has become reservable. Notification is one-shot; the user
	// still has to reserve the slot themselves.
	fresh := c.Waitlist[:0]
	for _, w := range c.Waitlist {
		if nowMs <= w.StartAtMs {
			fresh = append(fresh, w)
		}
	}
	c.Waitlist = fresh

	remaining := make([]*WaitlistEntry, 0, len(c.Waitlist))
	for _, w := range c.Waitlist {
		u, ok := c.Users[w.UserID]
		if !ok {
			continue
		}
		if u.FreeRights[w.Duration] <= 0 {
			remaining = append(remaining, w)
			continue
		}
		if hasRezStartConflict(u, w.StartAtMs) {
			remaining = append(remaining, w)
			continue
		}
		if ok, _ := canReserveSlot(c, w.Pool, w.Duration, w.StartAtMs, w.EndAtMs); ok {
			hm := e.cal.FormatHM(w.StartAtMs)
			notices = append(notices, Notification{
				Pool: w.Pool, Kind: ChanRez,
				Text: fmt.Sprintf("%s: a slot opened up: %d min at %s. Reserve it with /reserve %d %s.",
					c.userName(w.UserID), w.Duration, hm, w.Duration, hm),
			})
		} else {
			remaining = append(remaining, w)
		}
	}
	c.Waitlist = remaining

	// 5) daily reset of admin-granted extra rights
	today := e.cal.FormatDate(nowMs)
	if c.LastExtraResetDate == "" {
		c.LastExtraResetDate = today
	} else if c.LastExtraResetDate != today {
		for _, u := range c.Users {
			u.ExtraRights = map[int]int{}
		}
		c.LastExtraResetDate = today
		e.log.Info("daily extra rights reset", logx.String("date", today))
	}

	return notices
}
