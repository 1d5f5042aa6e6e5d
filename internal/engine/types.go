package engine

import (
	"time"

	"github.com/google/uuid"
)

// Break durations in minutes. Reservations allow 10 and 20; extra breaks
// additionally allow 5.
const (
	DurShort = 10
	DurLong  = 20
)

const (
	edgeBlockMin       = 30
	startWindowMin     = 5
	autoCloseGraceMin  = 2
	minEffectiveMin    = 5
	creationCooldown   = 30 * time.Minute
	interBreakCooldown = time.Hour
	maxAhead           = 2 * time.Hour
	suggestStep        = 5 * time.Minute
	pastStartSlack     = 30 * time.Second
	rezRetention       = 24 * time.Hour
	logRetention       = 90 * 24 * time.Hour
	pairGapMin         = 70

	startWindowMs    = startWindowMin * 60 * 1000
	autoCloseGraceMs = autoCloseGraceMin * 60 * 1000
)

// capacityLimit is the number of concurrent breaks a pool admits per duration.
var capacityLimit = map[int]int{DurShort: 2, DurLong: 1}

// defaultFreeRights is the per-shift entitlement.
var defaultFreeRights = map[int]int{DurShort: 2, DurLong: 1}

const (
	StatusPending   = "pending"
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

const (
	ClosedByUser  = "user"
	ClosedByAdmin = "admin"
	ClosedByAuto  = "auto"
)

// AdminPool is the pseudo pool key for breaks admins take outside the
// capacity system.
const AdminPool = "admin"

type Reservation struct {
	ID            string `json:"id"`
	Pool          string `json:"pool"`
	Duration      int    `json:"duration"`
	StartAtMs     int64  `json:"start_at_ms"`
	EndAtMs       int64  `json:"end_at_ms"`
	CreatedAtMs   int64  `json:"created_at_ms"`
	StartedAtMs   int64  `json:"started_at_ms,omitempty"`
	ExpiredAtMs   int64  `json:"expired_at_ms,omitempty"`
	CancelledAtMs int64  `json:"cancelled_at_ms,omitempty"`
	Status        string `json:"status"`
	AdminCreated  bool   `json:"admin_created,omitempty"`
}

type ActiveBreak struct {
	ID               string `json:"id"`
	Pool             string `json:"pool"`
	Duration         int    `json:"duration"`
	StartAtMs        int64  `json:"start_at_ms"`
	ScheduledEndAtMs int64  `json:"scheduled_end_at_ms"`
	AutoCloseAtMs    int64  `json:"auto_close_at_ms"`
	Emergency        bool   `json:"emergency,omitempty"`
	Extra            bool   `json:"extra,omitempty"`
	Admin            bool   `json:"admin,omitempty"`
	RezID            string `json:"rez_id,omitempty"`
}

// BreakRecord is the immutable log entry appended when a break closes.
type BreakRecord struct {
	ID               string `json:"id"`
	Pool             string `json:"pool"`
	Duration         int    `json:"duration"`
	Emergency        bool   `json:"emergency,omitempty"`
	Extra            bool   `json:"extra,omitempty"`
	Admin            bool   `json:"admin,omitempty"`
	StartAtMs        int64  `json:"start_at_ms"`
	EndAtMs          int64  `json:"end_at_ms"`
	ScheduledEndAtMs int64  `json:"scheduled_end_at_ms"`
	LateMin          int    `json:"late_min"`
	ClosedBy         string `json:"closed_by"`
	// ShiftDate keys the record to the calendar day the break started on,
	// so overnight shifts report under one day.
	ShiftDate string `json:"shift_date"`
}

type WaitlistEntry struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Pool        string `json:"pool"`
	Duration    int    `json:"duration"`
	StartAtMs   int64  `json:"start_at_ms"`
	EndAtMs     int64  `json:"end_at_ms"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

type UserRecord struct {
	DisplayName           string         `json:"display_name,omitempty"`
	LastResetShiftStartMs int64          `json:"last_reset_shift_start_ms,omitempty"`
	FreeRights            map[int]int    `json:"free_rights"`
	ExtraRights           map[int]int    `json:"extra_rights,omitempty"`
	Reservations          []*Reservation `json:"reservations"`
	ActiveBreak           *ActiveBreak   `json:"active_break,omitempty"`
	LastBreakClosedAtMs   int64          `json:"last_break_closed_at_ms,omitempty"`
	BreakLog              []*BreakRecord `json:"break_log"`
}

// snapshotVersion tags persisted documents so later layout changes can
// migrate on load.
const snapshotVersion = 1

// Community is the whole persisted state of one group chat.
type Community struct {
	Version            int                    `json:"version"`
	ChatID             int64                  `json:"chat_id"`
	Users              map[string]*UserRecord `json:"users"`
	Waitlist           []*WaitlistEntry       `json:"waitlist"`
	LastExtraResetDate string                 `json:"last_extra_reset_date,omitempty"`
}

func NewCommunity(chatID int64) *Community {
	return &Community{
		Version:  snapshotVersion,
		ChatID:   chatID,
		Users:    map[string]*UserRecord{},
		Waitlist: []*WaitlistEntry{},
	}
}

// normalize backfills fields that older snapshots may lack.
func (c *Community) normalize() {
	if c.Version == 0 {
		c.Version = snapshotVersion
	}
	if c.Users == nil {
		c.Users = map[string]*UserRecord{}
	}
	if c.Waitlist == nil {
		c.Waitlist = []*WaitlistEntry{}
	}
	for _, u := range c.Users {
		if u.FreeRights == nil {
			u.FreeRights = map[int]int{DurShort: 0, DurLong: 0}
		}
		if u.ExtraRights == nil {
			u.ExtraRights = map[int]int{}
		}
		if u.Reservations == nil {
			u.Reservations = []*Reservation{}
		}
		if u.BreakLog == nil {
			u.BreakLog = []*BreakRecord{}
		}
	}
}

func (c *Community) ensureUser(userID string) *UserRecord {
	u, ok := c.Users[userID]
	if !ok {
		u = &UserRecord{
			FreeRights:   map[int]int{DurShort: defaultFreeRights[DurShort], DurLong: defaultFreeRights[DurLong]},
			ExtraRights:  map[int]int{},
			Reservations: []*Reservation{},
			BreakLog:     []*BreakRecord{},
		}
		c.Users[userID] = u
	}
	return u
}

func (c *Community) userName(userID string) string {
	if u, ok := c.Users[userID]; ok && u.DisplayName != "" {
		return u.DisplayName
	}
	return "user " + userID
}

func clampRights(u *UserRecord) {
	for d, limit := range defaultFreeRights {
		if u.FreeRights[d] > limit {
			u.FreeRights[d] = limit
		}
		if u.FreeRights[d] < 0 {
			u.FreeRights[d] = 0
		}
	}
}

// closeBreak appends a log record and marks the matching reservation
// completed. It does not touch cooldown state; callers decide that.
func closeBreak(u *UserRecord, b *ActiveBreak, closedBy string, endAtMs int64, shiftDate string) *BreakRecord {
	lateMin := int((endAtMs - b.ScheduledEndAtMs) / 60000)
	if lateMin < 0 {
		lateMin = 0
	}
	rec := &BreakRecord{
		ID:               uuid.NewString(),
		Pool:             b.Pool,
		Duration:         b.Duration,
		Emergency:        b.Emergency,
		Extra:            b.Extra,
		Admin:            b.Admin,
		StartAtMs:        b.StartAtMs,
		EndAtMs:          endAtMs,
		ScheduledEndAtMs: b.ScheduledEndAtMs,
		LateMin:          lateMin,
		ClosedBy:         closedBy,
		ShiftDate:        shiftDate,
	}
	u.BreakLog = append(u.BreakLog, rec)
	if b.RezID != "" {
		for _, r := range u.Reservations {
			if r.ID == b.RezID {
				r.Status = StatusCompleted
				break
			}
		}
	}
	return rec
}
