// Package engine implements the reservation and break admission rules for
// shift-worker communities. All state mutations for a community run under a
// single mutex in a load-maintain-mutate-persist cycle, so rule checks always
// see a current snapshot.
package engine

import (
	"context"
	"fmt"
	"time"

	"breakbot/internal/shiftcal"
	"breakbot/pkg/logx"
)

// Store persists community snapshots. Load returns (nil, nil) when the
// community has no snapshot yet.
type Store interface {
	Load(ctx context.Context, chatID int64) (*Community, error)
	Save(ctx context.Context, c *Community) error
	Close() error
}

// Actor identifies the person issuing a command. DisplayName carries the
// group-profile name the shift tag is read from.
type Actor struct {
	UserID      string
	DisplayName string
}

// Notification is a message the engine wants delivered outside the direct
// command reply, addressed by pool and channel kind.
type Notification struct {
	Pool string // pool key, or AdminPool for the admin channel
	Kind string // "break" or "rez"
	Text string
}

const (
	ChanBreak = "break"
	ChanRez   = "rez"
)

// Result is the outcome of one engine operation.
type Result struct {
	Reply   string
	Private bool // reply addressed to the actor only, not announced
	Notices []Notification
}

func reply(text string) *Result { return &Result{Reply: text} }

func replyf(format string, args ...any) *Result {
	return &Result{Reply: fmt.Sprintf(format, args...)}
}

func replyPrivate(text string) *Result { return &Result{Reply: text, Private: true} }

func replyPrivatef(format string, args ...any) *Result {
	return &Result{Reply: fmt.Sprintf(format, args...), Private: true}
}

type Engine struct {
	store Store
	cal   *shiftcal.Calendar
	log   logx.Logger

	mu    chan struct{} // capacity-1 semaphore, context-aware
	cache map[int64]*Community
	now   func() time.Time
}

type Option func(*Engine)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, cal *shiftcal.Calendar, log logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cal:   cal,
		log:   log,
		mu:    make(chan struct{}, 1),
		cache: map[int64]*Community{},
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) lock(ctx context.Context) error {
	select {
	case e.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) unlock() { <-e.mu }

// withCommunity runs fn against the community's state with maintenance
// applied first, then persists. A failed save is logged but does not undo the
// mutation; the in-memory state stays authoritative and the next cycle
// retries the write.
func (e *Engine) withCommunity(ctx context.Context, chatID int64, fn func(c *Community, now time.Time) *Result) (*Result, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	c, ok := e.cache[chatID]
	if !ok {
		loaded, err := e.store.Load(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("load community %d: %w", chatID, err)
		}
		if loaded == nil {
			loaded = NewCommunity(chatID)
		}
		loaded.normalize()
		e.cache[chatID] = loaded
		c = loaded
	}

	now := e.now()
	notices := e.maintain(c, now)
	res := fn(c, now)
	if res == nil {
		res = &Result{}
	}
	res.Notices = append(notices, res.Notices...)

	if err := e.store.Save(ctx, c); err != nil {
		e.log.Error("community save failed",
			logx.Int64("chat_id", chatID), logx.Err(err))
	}
	return res, nil
}

// Sweep runs maintenance for one community and returns any notifications it
// produced. Called periodically by the scheduler.
func (e *Engine) Sweep(ctx context.Context, chatID int64) ([]Notification, error) {
	res, err := e.withCommunity(ctx, chatID, func(c *Community, now time.Time) *Result {
		return &Result{}
	})
	if err != nil {
		return nil, err
	}
	return res.Notices, nil
}

// Flush persists every cached community. Called on shutdown.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	var firstErr error
	for chatID, c := range e.cache {
		if err := e.store.Save(ctx, c); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush community %d: %w", chatID, err)
		}
	}
	return firstErr
}

// shiftContext resolves the actor's shift from their display name, applies
// the per-shift entitlement reset when a new occurrence begins, and records
// the display name for reporting.
type shiftContext struct {
	user     *UserRecord
	pool     string
	schedule shiftcal.Schedule
	bounds   shiftcal.Bounds
	inShift  bool
}

func (e *Engine) resolveShift(c *Community, actor Actor, channelPool string, now time.Time) (*shiftContext, *Result) {
	pool, sch, ok := shiftcal.DetectShift(actor.DisplayName)
	if !ok {
		return nil, replyPrivate("Could not read a shift tag from your display name.\n" +
			"Example: Name | 16.00 - 00.00\n\nValid shifts:\n" + shiftExamples())
	}
	if channelPool != "" && pool != channelPool {
		return nil, replyPrivatef("Wrong topic: this topic belongs to the %s pool, but your shift is %s.",
			poolLabel(channelPool), poolLabel(pool))
	}

	u := c.ensureUser(actor.UserID)
	u.DisplayName = actor.DisplayName

	sc := &shiftContext{user: u, pool: pool, schedule: sch}
	if b, ok := e.cal.BoundsContaining(now, sch); ok {
		sc.bounds = b
		sc.inShift = true
		startMs := b.Start.UnixMilli()
		if u.LastResetShiftStartMs != startMs {
			e.resetForNewShift(c, actor.UserID, u, now)
			u.LastResetShiftStartMs = startMs
		}
	}
	return sc, nil
}

func (e *Engine) resetForNewShift(c *Community, userID string, u *UserRecord, now time.Time) {
	nowMs := now.UnixMilli()
	if u.ActiveBreak != nil {
		closeBreak(u, u.ActiveBreak, ClosedByAuto, nowMs, e.cal.FormatDate(u.ActiveBreak.StartAtMs))
		u.ActiveBreak = nil
	}
	u.FreeRights = map[int]int{DurShort: defaultFreeRights[DurShort], DurLong: defaultFreeRights[DurLong]}
	kept := u.Reservations[:0]
	for _, r := range u.Reservations {
		// admin-created future reservations never consumed a right
		if r.AdminCreated && r.Status == StatusPending && r.StartAtMs > nowMs {
			kept = append(kept, r)
		}
	}
	u.Reservations = kept
	u.LastBreakClosedAtMs = 0
	remaining := c.Waitlist[:0]
	for _, w := range c.Waitlist {
		if w.UserID != userID {
			remaining = append(remaining, w)
		}
	}
	c.Waitlist = remaining
}

func logUser(id string) logx.Field { return logx.String("user", id) }
func logDur(d int) logx.Field      { return logx.Int("duration_min", d) }
func logPool(p string) logx.Field  { return logx.String("pool", p) }

var poolLabels = map[string]string{
	"morning": "Morning",
	"evening": "Evening",
	"night":   "Night",
	AdminPool: "Admin",
}

func poolLabel(key string) string {
	if l, ok := poolLabels[key]; ok {
		return l
	}
	return key
}

func shiftExamples() string {
	out := ""
	for _, key := range shiftcal.PoolKeys {
		for _, opt := range shiftcal.PoolOptions[key] {
			out += fmt.Sprintf("  %s (%s)\n", opt.Label, poolLabel(key))
		}
	}
	return out
}
