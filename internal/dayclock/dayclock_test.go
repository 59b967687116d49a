package dayclock

import (
	"testing"
	"time"
)

const key = "2026-03-10"

// For 2026-03-10 in UTC: available from 2026-03-09T00:00:00Z, editable
// through 2026-03-13T00:00:00Z inclusive, locked strictly after.

func at(value string, t *testing.T) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestAvailableFlipsExactlyAtLead(t *testing.T) {
	if Available(at("2026-03-08T23:59:59Z", t), key, time.UTC, "") {
		t.Fatal("expected unavailable one second before dayStart-24h")
	}
	if !Available(at("2026-03-09T00:00:00Z", t), key, time.UTC, "") {
		t.Fatal("expected available exactly at dayStart-24h")
	}
	if !Available(at("2027-01-01T00:00:00Z", t), key, time.UTC, "") {
		t.Fatal("expected old days to stay available")
	}
}

func TestAvailableRespectsAccountFloor(t *testing.T) {
	now := at("2026-03-10T12:00:00Z", t)
	if Available(now, key, time.UTC, "2026-04-01") {
		t.Fatal("expected days before account start to be unavailable")
	}
	if !Available(now, key, time.UTC, "2026-03-10") {
		t.Fatal("expected the account start day itself to be available")
	}
}

func TestEditableWindowBounds(t *testing.T) {
	cases := []struct {
		now  string
		want bool
	}{
		{"2026-03-08T23:59:59Z", false},
		{"2026-03-09T00:00:00Z", true},
		{"2026-03-10T12:00:00Z", true},
		{"2026-03-13T00:00:00Z", true},
		{"2026-03-13T00:00:01Z", false},
	}
	for _, tc := range cases {
		if got := Editable(at(tc.now, t), key, time.UTC, ""); got != tc.want {
			t.Errorf("Editable at %s = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestLockedImpliesNotEditable(t *testing.T) {
	samples := []string{
		"2026-03-08T00:00:00Z",
		"2026-03-09T00:00:00Z",
		"2026-03-11T08:00:00Z",
		"2026-03-13T00:00:00Z",
		"2026-03-13T00:00:01Z",
		"2026-06-01T00:00:00Z",
	}
	for _, sample := range samples {
		now := at(sample, t)
		if Locked(now, key, time.UTC) && Editable(now, key, time.UTC, "") {
			t.Errorf("day is both locked and editable at %s", sample)
		}
	}
}

func TestLockedBoundary(t *testing.T) {
	if Locked(at("2026-03-13T00:00:00Z", t), key, time.UTC) {
		t.Fatal("expected unlocked exactly at dayEnd+48h")
	}
	if !Locked(at("2026-03-13T00:00:01Z", t), key, time.UTC) {
		t.Fatal("expected locked one second past dayEnd+48h")
	}
}

func TestTimezoneShiftsWindow(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Tokyo midnight is 9 hours ahead of UTC midnight.
	now := at("2026-03-08T16:00:00Z", t) // 2026-03-09T01:00+09:00
	if !Available(now, key, tokyo, "") {
		t.Fatal("expected available after Tokyo dayStart-24h")
	}
	if Available(at("2026-03-08T14:59:59Z", t), key, tokyo, "") {
		t.Fatal("expected unavailable before Tokyo dayStart-24h")
	}
}

func TestDocStatus(t *testing.T) {
	open := at("2026-03-10T12:00:00Z", t)
	locked := at("2026-03-14T00:00:00Z", t)

	if got := DocStatus("closed", locked, key, time.UTC); got != StatusClosed {
		t.Errorf("persisted closed = %s", got)
	}
	if got := DocStatus("auto_closed", open, key, time.UTC); got != StatusAutoClosed {
		t.Errorf("persisted auto_closed = %s", got)
	}
	if got := DocStatus("open", locked, key, time.UTC); got != StatusPendingAutoClose {
		t.Errorf("locked unswept day = %s, want pending_auto_close", got)
	}
	if got := DocStatus("", locked, key, time.UTC); got != StatusPendingAutoClose {
		t.Errorf("locked nonexistent day = %s, want pending_auto_close", got)
	}
	if got := DocStatus("open", open, key, time.UTC); got != StatusOpen {
		t.Errorf("open day = %s", got)
	}
}

func TestShouldAutoClose(t *testing.T) {
	locked := at("2026-03-14T00:00:00Z", t)
	editable := at("2026-03-11T00:00:00Z", t)

	if !ShouldAutoClose("open", locked, key, time.UTC) {
		t.Fatal("expected open locked day to auto-close")
	}
	if ShouldAutoClose("open", editable, key, time.UTC) {
		t.Fatal("expected open editable day to stay open")
	}
	if ShouldAutoClose("closed", locked, key, time.UTC) {
		t.Fatal("closed day must never auto-close")
	}
	if ShouldAutoClose("auto_closed", locked, key, time.UTC) {
		t.Fatal("auto_closed day must never auto-close again")
	}
}
