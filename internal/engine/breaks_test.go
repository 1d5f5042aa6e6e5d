package engine

import (
	"context"
	"testing"
	"time"
)

func TestStartBreakFromReservation(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurLong, "10:00", false))

	// before the slot opens
	clk.advance(55 * time.Minute) // 09:55
	res := must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurLong))
	wantReply(t, res, "no active reservation")

	clk.advance(7 * time.Minute) // 10:02
	res = must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurLong))
	wantReply(t, res, "break started")
	wantReply(t, res, "ends 10:20")

	u := e.cache[testChat].Users[alice.UserID]
	b := u.ActiveBreak
	if b == nil {
		t.Fatalf("no active break")
	}
	if b.StartAtMs != at(t, "2026-03-10 10:02").UnixMilli() {
		t.Fatalf("start not floored to minute: %d", b.StartAtMs)
	}
	if b.ScheduledEndAtMs != at(t, "2026-03-10 10:20").UnixMilli() {
		t.Fatalf("scheduled end = %d", b.ScheduledEndAtMs)
	}
	if u.Reservations[0].Status != StatusStarted {
		t.Fatalf("reservation status = %s", u.Reservations[0].Status)
	}

	// a second break cannot start while one is active
	res = must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurLong))
	wantReply(t, res, "already have an active break")
}

func TestStartBreakLateShortens(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "10:00", false))
	clk.advance(64 * time.Minute) // 10:04

	res := must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "break started")
	wantReply(t, res, "shortened your break to 6 min")

	b := e.cache[testChat].Users[alice.UserID].ActiveBreak
	if b.ScheduledEndAtMs != at(t, "2026-03-10 10:10").UnixMilli() {
		t.Fatalf("end moved: %d", b.ScheduledEndAtMs)
	}
}

func TestStartBreakWrongDurationHint(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurLong, "10:00", false))
	clk.advance(61 * time.Minute) // 10:01

	res := must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "You have a 20 min reservation for this slot")
	wantReply(t, res, "/break 20")
}

func TestStartBreakAfterWindowExpired(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "10:00", false))
	clk.advance(66 * time.Minute) // 10:06, window closed at 10:05

	res := must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "reservation lapsed")
	wantReply(t, res, "The right was returned")

	u := e.cache[testChat].Users[alice.UserID]
	if u.FreeRights[DurShort] != 2 {
		t.Fatalf("right not refunded: %d", u.FreeRights[DurShort])
	}
}

func TestStartBreakCapacityExcludesSelf(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurLong, "10:00", false))
	must(t)(e.CreateReservation(ctx, testChat, bob, "morning", DurLong, "10:20", false))

	clk.advance(62 * time.Minute) // 10:02
	must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurLong))

	// alice's break runs to 10:20 with a 2 min grace; bob is blocked at 10:21
	clk.advance(19 * time.Minute) // 10:21
	res := must(t)(e.StartBreak(ctx, testChat, bob, "morning", DurLong))
	wantReply(t, res, "pool is busy right now")
	wantReply(t, res, "reservation stays valid")
}

func TestEndBreak(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "10:00", false))
	clk.advance(60 * time.Minute)
	must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))

	clk.advance(8 * time.Minute) // ends early at 10:08
	res := must(t)(e.EndBreak(ctx, testChat, alice, "morning"))
	wantReply(t, res, "break ended")

	u := e.cache[testChat].Users[alice.UserID]
	if u.ActiveBreak != nil {
		t.Fatalf("break still active")
	}
	if len(u.BreakLog) != 1 {
		t.Fatalf("break log entries = %d", len(u.BreakLog))
	}
	if u.BreakLog[0].LateMin != 0 || u.BreakLog[0].ClosedBy != ClosedByUser {
		t.Fatalf("log = %+v", u.BreakLog[0])
	}
	if u.LastBreakClosedAtMs != at(t, "2026-03-10 10:08").UnixMilli() {
		t.Fatalf("cooldown anchor = %d", u.LastBreakClosedAtMs)
	}
	if u.Reservations[0].Status != StatusCompleted {
		t.Fatalf("reservation not completed: %s", u.Reservations[0].Status)
	}
}

func TestEndBreakLate(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "10:00", false))
	clk.advance(60 * time.Minute)
	must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))

	// 1 min past scheduled end: within grace, no auto-close yet
	clk.advance(11 * time.Minute) // 10:11
	res := must(t)(e.EndBreak(ctx, testChat, alice, "morning"))
	wantReply(t, res, "Back to work")

	u := e.cache[testChat].Users[alice.UserID]
	if u.BreakLog[0].LateMin != 1 {
		t.Fatalf("late min = %d", u.BreakLog[0].LateMin)
	}
}

func TestInterBreakCooldown(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "10:00", false))
	clk.advance(60 * time.Minute)
	must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))
	clk.advance(10 * time.Minute)
	must(t)(e.EndBreak(ctx, testChat, alice, "morning"))

	clk.advance(20 * time.Minute) // 10:30
	res := must(t)(e.StartBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "wait between breaks is not over")

	// reserving a slot inside the cooldown is also rejected
	res = must(t)(e.CreateReservation(ctx, testChat, alice, "morning", DurShort, "11:00", false))
	wantReply(t, res, "1 hour wait is required after your last break")
}

func TestUrgentBreak(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	res := must(t)(e.StartEmergencyBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "urgent break started")

	u := e.cache[testChat].Users[alice.UserID]
	if u.FreeRights[DurShort] != 1 {
		t.Fatalf("urgent break should consume a right: %d", u.FreeRights[DurShort])
	}
	if b := u.ActiveBreak; b == nil || !b.Emergency {
		t.Fatalf("active break = %+v", b)
	}

	clk.advance(10 * time.Minute)
	must(t)(e.EndBreak(ctx, testChat, alice, "morning"))
	if u.LastBreakClosedAtMs != 0 {
		t.Fatalf("urgent break must not arm the cooldown")
	}
}

func TestUrgentBreakEdges(t *testing.T) {
	ctx := context.Background()

	e, _, _ := newTestEngine(t, "2026-03-10 08:10")
	res := must(t)(e.StartEmergencyBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "first 30 minutes")

	e, _, _ = newTestEngine(t, "2026-03-10 15:25")
	res = must(t)(e.StartEmergencyBreak(ctx, testChat, alice, "morning", DurShort))
	wantReply(t, res, "protected zone at the end")
}

func TestExtraBreak(t *testing.T) {
	e, clk, _ := newTestEngine(t, "2026-03-10 17:00") // outside the morning shift
	ctx := context.Background()
	admin := Actor{UserID: "admin1", DisplayName: "Root"}

	res := must(t)(e.StartExtraBreak(ctx, testChat, alice, "morning", 5))
	wantReply(t, res, "no 5 min extra break right")

	must(t)(e.GrantExtraRight(ctx, testChat, admin, Target{UserID: alice.UserID}, 5))
	res = must(t)(e.StartExtraBreak(ctx, testChat, alice, "morning", 5))
	wantReply(t, res, "extra break started")

	u := e.cache[testChat].Users[alice.UserID]
	if u.ExtraRights[5] != 0 {
		t.Fatalf("extra right not consumed: %d", u.ExtraRights[5])
	}
	if b := u.ActiveBreak; b == nil || !b.Extra || !b.Emergency {
		t.Fatalf("active break = %+v", b)
	}

	clk.advance(5 * time.Minute)
	must(t)(e.EndBreak(ctx, testChat, alice, "morning"))
	if u.LastBreakClosedAtMs != 0 {
		t.Fatalf("extra break must not arm the cooldown")
	}
}

func TestExtraBreakOnlyOutsideShift(t *testing.T) {
	e, _, _ := newTestEngine(t, "2026-03-10 09:00")
	ctx := context.Background()

	res := must(t)(e.StartExtraBreak(ctx, testChat, alice, "morning", 5))
	wantReply(t, res, "only be used outside your shift")
}
