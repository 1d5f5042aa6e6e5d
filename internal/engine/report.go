package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"breakbot/internal/shiftcal"
	"breakbot/pkg/logx"
)

// Report periods.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

type logEntry struct {
	userID string
	rec    *BreakRecord
}

// OverallReport summarises break usage for one pool over a day, week or
// month. dayStr accepts "today", "yesterday" or DD.MM.YYYY.
func (e *Engine) OverallReport(ctx context.Context, chatID int64, admin Actor, pool, period, dayStr string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		day, ok := e.cal.ParseDay(dayStr, now)
		if !ok {
			return replyPrivate("Invalid date format.\nExamples: 17.02.2026, today, yesterday")
		}

		var rangeStart, rangeEnd time.Time
		var periodLabel string
		switch period {
		case PeriodWeek:
			rangeStart, rangeEnd = e.cal.WeekRange(day)
			periodLabel = " (weekly)"
		case PeriodMonth:
			rangeStart, rangeEnd = e.cal.MonthRange(day)
			periodLabel = " (monthly)"
		default:
			rangeStart, rangeEnd = day, day
		}
		dateLabel := rangeStart.Format("02.01.2006")
		if !rangeStart.Equal(rangeEnd) {
			dateLabel += " - " + rangeEnd.Format("02.01.2006")
		}

		var all []logEntry
		for uid, u := range c.Users {
			for _, l := range u.BreakLog {
				if pool != "" && l.Pool != pool {
					continue
				}
				if l.Admin {
					continue
				}
				if !e.cal.DateInRange(l.ShiftDate, rangeStart, rangeEnd) {
					continue
				}
				all = append(all, logEntry{userID: uid, rec: l})
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].rec.StartAtMs < all[j].rec.StartAtMs })

		title := fmt.Sprintf("Shift report: %s%s | %s", poolLabel(pool), periodLabel, dateLabel)

		e.log.Info("report viewed",
			logx.String("admin", admin.UserID), logPool(pool),
			logx.String("period", period), logx.String("range", dateLabel))

		if len(all) == 0 {
			return replyPrivate(title + "\n\nNo records for this range and pool.")
		}

		breaksByUser := map[string]int{}
		lateByUser := map[string]int{}
		datesSeen := map[string]bool{}
		var normal, urgent, extra, totalMin int
		var autoClosed []logEntry
		urgentUsers := map[string]bool{}
		for _, en := range all {
			l := en.rec
			breaksByUser[en.userID]++
			totalMin += l.Duration
			datesSeen[l.ShiftDate] = true
			switch {
			case l.Extra:
				extra++
			case l.Emergency:
				urgent++
				urgentUsers[en.userID] = true
			default:
				normal++
			}
			if l.LateMin > 0 {
				lateByUser[en.userID] += l.LateMin
			}
			if l.ClosedBy == ClosedByAuto {
				autoClosed = append(autoClosed, en)
			}
		}

		var lines []string
		lines = append(lines, title, "")
		if period != PeriodDay && len(datesSeen) > 0 {
			days := make([]string, 0, len(datesSeen))
			for d := range datesSeen {
				days = append(days, d)
			}
			sort.Slice(days, func(i, j int) bool {
				di, _ := time.Parse("02.01.2006", days[i])
				dj, _ := time.Parse("02.01.2006", days[j])
				return di.Before(dj)
			})
			lines = append(lines, "Days with records: "+strings.Join(days, ", "), "")
		}

		avg := totalMin / len(all)
		lines = append(lines, fmt.Sprintf("People on break: %d", len(breaksByUser)))
		extraPart := ""
		if extra > 0 {
			extraPart = fmt.Sprintf(", extra %d", extra)
		}
		lines = append(lines, fmt.Sprintf("Breaks: %d (normal %d, urgent %d%s)", len(all), normal, urgent, extraPart))
		lines = append(lines, fmt.Sprintf("Total break time: %d min, average %d min", totalMin, avg))
		if len(lateByUser) > 0 {
			lateTotal := 0
			for _, v := range lateByUser {
				lateTotal += v
			}
			lines = append(lines, fmt.Sprintf("Late closers: %d, average overrun %d min each",
				len(lateByUser), lateTotal/len(lateByUser)))
		}

		type userCount struct {
			uid   string
			count int
		}
		ranked := make([]userCount, 0, len(breaksByUser))
		for uid, n := range breaksByUser {
			ranked = append(ranked, userCount{uid, n})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].count != ranked[j].count {
				return ranked[i].count > ranked[j].count
			}
			return ranked[i].uid < ranked[j].uid
		})
		lines = append(lines, "", "Break takers:")
		for i, rc := range ranked {
			userMin := 0
			for _, en := range all {
				if en.userID == rc.uid {
					userMin += en.rec.Duration
				}
			}
			lateText := ""
			if lateByUser[rc.uid] > 0 {
				lateText = fmt.Sprintf(", %d min late", lateByUser[rc.uid])
			}
			lines = append(lines, fmt.Sprintf("%d. %s: %d breaks (%d min%s)", i+1, c.userName(rc.uid), rc.count, userMin, lateText))
		}

		if len(autoClosed) > 0 {
			lines = append(lines, "", fmt.Sprintf("Auto-closed: %d", len(autoClosed)))
			for i, en := range autoClosed {
				if i == 10 {
					break
				}
				lines = append(lines, fmt.Sprintf("  %s: %d min, %d min late", c.userName(en.userID), en.rec.Duration, en.rec.LateMin))
			}
		}

		if len(urgentUsers) > 0 {
			names := make([]string, 0, len(urgentUsers))
			for uid := range urgentUsers {
				names = append(names, c.userName(uid))
			}
			sort.Strings(names)
			lines = append(lines, "", "Urgent break users: "+strings.Join(names, ", "))
		}

		lines = append(lines, e.hourlyHistogram(all)...)

		return replyPrivate(truncateReport(strings.Join(lines, "\n")))
	})
}

func (e *Engine) hourlyHistogram(all []logEntry) []string {
	if len(all) == 0 {
		return nil
	}
	counts := map[int]int{}
	maxCount := 0
	for _, en := range all {
		h := time.UnixMilli(en.rec.StartAtMs).In(e.cal.Location()).Hour()
		counts[h]++
		if counts[h] > maxCount {
			maxCount = counts[h]
		}
	}
	const barWidth = 10
	var lines []string
	for h := 0; h < 24; h++ {
		n := counts[h]
		if n == 0 {
			continue
		}
		barLen := (n*barWidth + maxCount/2) / maxCount
		if barLen < 1 {
			barLen = 1
		}
		lines = append(lines, fmt.Sprintf("%02d:00  %-*s %d", h, barWidth+1, strings.Repeat("#", barLen), n))
	}
	if len(lines) == 0 {
		return nil
	}
	return append([]string{"", "Hourly load:"}, lines...)
}

// UserReport shows one user's current state plus their break and
// reservation history over an inclusive date range.
func (e *Engine) UserReport(ctx context.Context, chatID int64, admin Actor, target Target, dayStr, dayStr2 string) (*Result, error) {
	return e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		day, ok := e.cal.ParseDay(dayStr, now)
		if !ok {
			return replyPrivate("Invalid date format.\nExamples: 17.02.2026, today, yesterday")
		}
		rangeStart, rangeEnd := day, day
		if dayStr2 != "" {
			day2, ok := e.cal.ParseDay(dayStr2, now)
			if !ok {
				return replyPrivate("Invalid second date format.\nExamples: 17.02.2026, today, yesterday")
			}
			if day2.Before(day) {
				rangeStart, rangeEnd = day2, day
			} else {
				rangeStart, rangeEnd = day, day2
			}
		}
		dateLabel := rangeStart.Format("02.01.2006")
		if !rangeStart.Equal(rangeEnd) {
			dateLabel += " - " + rangeEnd.Format("02.01.2006")
		}

		u, ok := c.Users[target.UserID]
		if !ok {
			return replyPrivate("No record found for that user.")
		}
		if target.DisplayName != "" {
			u.DisplayName = target.DisplayName
		}

		var lines []string
		lines = append(lines, fmt.Sprintf("%s | %s", c.userName(target.UserID), dateLabel), "", "Current state:")

		shiftLine := "unknown"
		if pool, sch, ok := shiftcal.DetectShift(u.DisplayName); ok {
			shiftLine = fmt.Sprintf("%s (%s)", poolLabel(pool), sch.Label)
		}
		lines = append(lines, "Shift: "+shiftLine)

		if b := u.ActiveBreak; b != nil {
			remainMs := b.ScheduledEndAtMs - now.UnixMilli()
			var remainText string
			if remainMs > 0 {
				remainText = fmt.Sprintf("%d min left", ceilMin(remainMs))
			} else {
				remainText = fmt.Sprintf("%d min over", -remainMs/60000)
			}
			lines = append(lines, fmt.Sprintf("Active break: %d min (%s), %s to %s (%s)",
				b.Duration, breakKind(b), e.cal.FormatHM(b.StartAtMs), e.cal.FormatHM(b.ScheduledEndAtMs), remainText))
		} else {
			lines = append(lines, "Active break: none")
		}

		var pendingRez []*Reservation
		for _, r := range u.Reservations {
			if r.Status == StatusPending {
				pendingRez = append(pendingRez, r)
			}
		}
		sort.Slice(pendingRez, func(i, j int) bool { return pendingRez[i].StartAtMs < pendingRez[j].StartAtMs })
		if len(pendingRez) > 0 {
			parts := make([]string, 0, len(pendingRez))
			for _, r := range pendingRez {
				parts = append(parts, fmt.Sprintf("%d min at %s", r.Duration, e.cal.FormatHM(r.StartAtMs)))
			}
			lines = append(lines, "Pending reservations: "+strings.Join(parts, ", "))
		} else {
			lines = append(lines, "Pending reservations: none")
		}

		rights := fmt.Sprintf("Rights left: 10 min x%d, 20 min x%d", u.FreeRights[DurShort], u.FreeRights[DurLong])
		var extraParts []string
		for _, d := range []int{5, DurShort, DurLong} {
			if n := u.ExtraRights[d]; n > 0 {
				extraParts = append(extraParts, fmt.Sprintf("%d min x%d", d, n))
			}
		}
		if len(extraParts) > 0 {
			rights += " | extra: " + strings.Join(extraParts, ", ")
		}
		lines = append(lines, rights, "")

		var logs []*BreakRecord
		for _, l := range u.BreakLog {
			if e.cal.DateInRange(l.ShiftDate, rangeStart, rangeEnd) {
				logs = append(logs, l)
			}
		}
		sort.Slice(logs, func(i, j int) bool { return logs[i].StartAtMs < logs[j].StartAtMs })

		if len(logs) == 0 {
			lines = append(lines, "No break records in this range.")
		} else {
			totalMin, totalLate, autoCount, urgentCount, lateCount := 0, 0, 0, 0, 0
			for _, l := range logs {
				totalMin += l.Duration
				totalLate += l.LateMin
				if l.ClosedBy == ClosedByAuto {
					autoCount++
				}
				if l.Emergency && !l.Extra {
					urgentCount++
				}
				if l.LateMin > 0 {
					lateCount++
				}
			}
			lines = append(lines, fmt.Sprintf("Break history (%s):", dateLabel))
			lines = append(lines, fmt.Sprintf("Summary: %d breaks, %d min, %d min late, auto-closed %d, urgent %d, late closers %d",
				len(logs), totalMin, totalLate, autoCount, urgentCount, lateCount))
			for _, l := range logs {
				closed := "/resume"
				switch l.ClosedBy {
				case ClosedByAuto:
					closed = "auto-close"
				case ClosedByAdmin:
					closed = "admin"
				}
				late := ""
				if l.LateMin > 0 {
					late = fmt.Sprintf(", %d min late", l.LateMin)
				}
				lines = append(lines, fmt.Sprintf("  %s %s %s-%s %d min%s (%s)",
					breakKindRecord(l), shortDate(l.ShiftDate),
					e.cal.FormatHM(l.StartAtMs), e.cal.FormatHM(l.EndAtMs), l.Duration, late, closed))
			}
		}

		var history []*Reservation
		for _, r := range u.Reservations {
			if r.Status == StatusPending {
				continue
			}
			rezDay := e.cal.FormatDate(r.StartAtMs)
			if e.cal.DateInRange(rezDay, rangeStart, rangeEnd) {
				history = append(history, r)
			}
		}
		sort.Slice(history, func(i, j int) bool { return history[i].StartAtMs < history[j].StartAtMs })
		if len(history) > 0 {
			lines = append(lines, "", fmt.Sprintf("Reservation history (%s):", dateLabel))
			for _, r := range history {
				adminTag := ""
				if r.AdminCreated {
					adminTag = " (admin)"
				}
				lines = append(lines, fmt.Sprintf("  %d min at %s: %s (%s)%s",
					r.Duration, e.cal.FormatHM(r.StartAtMs), statusLabel(r.Status),
					time.UnixMilli(r.StartAtMs).In(e.cal.Location()).Format("02.01"), adminTag))
			}
		}

		return replyPrivate(truncateReport(strings.Join(lines, "\n")))
	})
}

func breakKind(b *ActiveBreak) string {
	switch {
	case b.Admin:
		return "admin"
	case b.Extra:
		return "extra"
	case b.Emergency:
		return "urgent"
	default:
		return "normal"
	}
}

func breakKindRecord(l *BreakRecord) string {
	switch {
	case l.Admin:
		return "admin"
	case l.Extra:
		return "extra"
	case l.Emergency:
		return "urgent"
	default:
		return "normal"
	}
}

func statusLabel(status string) string {
	switch status {
	case StatusCompleted:
		return "used"
	case StatusExpired:
		return "lapsed"
	case StatusCancelled:
		return "cancelled"
	case StatusStarted:
		return "started"
	default:
		return status
	}
}

func shortDate(d string) string {
	if len(d) >= 5 {
		return d[:5]
	}
	return d
}

const maxReportLen = 4000

func truncateReport(s string) string {
	if len(s) <= maxReportLen {
		return s
	}
	// back up to a rune boundary so multi-byte names don't get split
	cut := maxReportLen - 50
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n(report truncated)"
}
