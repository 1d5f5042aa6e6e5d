package shiftcal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var shiftTagRe = regexp.MustCompile(`(\d{1,2}[.:]\d{2})\s*-\s*(\d{1,2}[.:]\d{2})`)

var dashNormalizer = strings.NewReplacer("–", "-", "—", "-", "−", "-")

// ParseHHMM parses "HH:MM" or "HH.MM".
func ParseHHMM(s string) (HourMinute, bool) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":.")
	if sep <= 0 || sep == len(s)-1 {
		return HourMinute{}, false
	}
	h, err := strconv.Atoi(s[:sep])
	if err != nil {
		return HourMinute{}, false
	}
	m, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return HourMinute{}, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return HourMinute{}, false
	}
	return HourMinute{Hour: h, Minute: m}, true
}

// DetectShift extracts a shift tag like "16.00-00.00" from a member display
// name and resolves it against the schedule table. The matched range must
// correspond to a configured option; a plausible-looking but unknown range is
// rejected.
func DetectShift(displayName string) (pool string, sch Schedule, ok bool) {
	m := shiftTagRe.FindStringSubmatch(dashNormalizer.Replace(displayName))
	if m == nil {
		return "", Schedule{}, false
	}
	start, ok1 := ParseHHMM(m[1])
	end, ok2 := ParseHHMM(m[2])
	if !ok1 || !ok2 {
		return "", Schedule{}, false
	}
	for _, key := range PoolKeys {
		for _, opt := range PoolOptions[key] {
			if opt.Start == start && opt.End == end {
				return key, opt, true
			}
		}
	}
	return "", Schedule{}, false
}

// ParseDay resolves "today", "yesterday" or "DD.MM.YYYY" to a start-of-day
// instant.
func (c *Calendar) ParseDay(s string, now time.Time) (time.Time, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return c.StartOfDay(now), true
	case "yesterday":
		return c.StartOfDay(now).AddDate(0, 0, -1), true
	}
	t, err := time.ParseInLocation("02.01.2006", strings.TrimSpace(s), c.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DateInRange reports whether a DD.MM.YYYY date falls inside the inclusive
// start-of-day range [start, end].
func (c *Calendar) DateInRange(dateStr string, start, end time.Time) bool {
	d, err := time.ParseInLocation("02.01.2006", dateStr, c.loc)
	if err != nil {
		return false
	}
	return !d.Before(start) && !d.After(end)
}

// FormatDate renders an epoch-milliseconds instant as DD.MM.YYYY.
func (c *Calendar) FormatDate(ms int64) string {
	return time.UnixMilli(ms).In(c.loc).Format("02.01.2006")
}

// FormatHM renders an epoch-milliseconds instant as HH:MM.
func (c *Calendar) FormatHM(ms int64) string {
	return time.UnixMilli(ms).In(c.loc).Format("15:04")
}

// FormatHMWithDayHint renders HH:MM plus a day hint when the instant does not
// fall on the same calendar day as ref.
func (c *Calendar) FormatHMWithDayHint(ms int64, ref time.Time) string {
	t := time.UnixMilli(ms).In(c.loc)
	hm := t.Format("15:04")
	day := c.StartOfDay(t)
	refDay := c.StartOfDay(ref)
	switch {
	case day.Equal(refDay):
		return hm
	case day.Equal(refDay.AddDate(0, 0, 1)):
		return fmt.Sprintf("%s (tomorrow)", hm)
	case day.Equal(refDay.AddDate(0, 0, -1)):
		return fmt.Sprintf("%s (yesterday)", hm)
	default:
		return fmt.Sprintf("%s (%s)", hm, t.Format("02.01"))
	}
}
