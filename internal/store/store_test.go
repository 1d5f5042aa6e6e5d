package store

import (
	"context"
	"path/filepath"
	"testing"

	"breakbot/internal/engine"
	logx "breakbot/pkg/logx"
)

func sampleCommunity(chatID int64) *engine.Community {
	c := engine.NewCommunity(chatID)
	c.LastExtraResetDate = "15.03.2026"
	c.Users["100"] = &engine.UserRecord{
		DisplayName:           "Alice | 08:00-16:00",
		LastResetShiftStartMs: 1700000000000,
		FreeRights:            map[int]int{10: 1, 20: 1},
		ExtraRights:           map[int]int{5: 1},
		Reservations: []*engine.Reservation{{
			ID:          "rez-1",
			Pool:        "morning",
			Duration:    10,
			StartAtMs:   1700003600000,
			EndAtMs:     1700004200000,
			CreatedAtMs: 1700000000000,
			Status:      engine.StatusPending,
		}},
		LastBreakClosedAtMs: 1699999000000,
		BreakLog: []*engine.BreakRecord{{
			ID:        "brk-1",
			Pool:      "morning",
			Duration:  10,
			StartAtMs: 1699998000000,
			EndAtMs:   1699998600000,
			ClosedBy:  engine.ClosedByUser,
			ShiftDate: "15.03.2026",
		}},
	}
	c.Waitlist = []*engine.WaitlistEntry{{
		ID:          "wl-1",
		UserID:      "200",
		Pool:        "morning",
		Duration:    20,
		StartAtMs:   1700007200000,
		EndAtMs:     1700008400000,
		CreatedAtMs: 1700000000000,
	}}
	return c
}

func checkRoundTrip(t *testing.T, st engine.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := st.Load(ctx, 42)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got != nil {
		t.Fatalf("load empty = %+v, want nil", got)
	}

	want := sampleCommunity(42)
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = st.Load(ctx, 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("load returned nil after save")
	}
	if got.ChatID != 42 {
		t.Fatalf("chat id = %d, want 42", got.ChatID)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
	u := got.Users["100"]
	if u == nil {
		t.Fatal("user 100 missing after round trip")
	}
	if u.FreeRights[10] != 1 || u.FreeRights[20] != 1 {
		t.Fatalf("free rights = %v", u.FreeRights)
	}
	if u.ExtraRights[5] != 1 {
		t.Fatalf("extra rights = %v", u.ExtraRights)
	}
	if len(u.Reservations) != 1 || u.Reservations[0].ID != "rez-1" {
		t.Fatalf("reservations = %+v", u.Reservations)
	}
	if len(u.BreakLog) != 1 || u.BreakLog[0].ShiftDate != "15.03.2026" {
		t.Fatalf("break log = %+v", u.BreakLog)
	}
	if len(got.Waitlist) != 1 || got.Waitlist[0].UserID != "200" {
		t.Fatalf("waitlist = %+v", got.Waitlist)
	}
	if got.LastExtraResetDate != "15.03.2026" {
		t.Fatalf("last extra reset = %q", got.LastExtraResetDate)
	}

	// Overwrite keeps the latest snapshot, not both.
	want.Users["100"].FreeRights[10] = 0
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err = st.Load(ctx, 42)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Users["100"].FreeRights[10] != 0 {
		t.Fatalf("free rights after overwrite = %v", got.Users["100"].FreeRights)
	}

	// Communities are isolated from each other.
	other, err := st.Load(ctx, 43)
	if err != nil {
		t.Fatalf("load other: %v", err)
	}
	if other != nil {
		t.Fatalf("load other = %+v, want nil", other)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	checkRoundTrip(t, st)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "breaks.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	checkRoundTrip(t, st)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st, err := Open(Config{Path: dir}, logx.Nop()) // empty driver means file
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(ctx, sampleCommunity(7)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.Save(ctx, sampleCommunity(7)); err == nil {
		t.Fatal("save after close should fail")
	}

	st, err = Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.Load(ctx, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.Users["100"] == nil {
		t.Fatalf("snapshot lost across reopen: %+v", got)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("sqlite driver without path should fail")
	}
}
