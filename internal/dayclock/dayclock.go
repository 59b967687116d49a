// Package dayclock computes a day record's availability, editability, and lock
// state from explicit instants, so every decision is reproducible in tests.
package dayclock

import (
	"time"
)

const (
	// AvailableLead is how long before local midnight a day opens for
	// reading and editing.
	AvailableLead = 24 * time.Hour
	// EditGrace is how long after local end-of-day edits are still
	// accepted before the day locks.
	EditGrace = 48 * time.Hour

	dateLayout = "2006-01-02"
)

// Derived day status as seen by a client.
type Status string

const (
	StatusOpen             Status = "open"
	StatusClosed           Status = "closed"
	StatusAutoClosed       Status = "auto_closed"
	StatusPendingAutoClose Status = "pending_auto_close"
)

// DayStart returns local midnight at the start of dateKey in loc.
func DayStart(dateKey string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, dateKey, loc)
}

// DayEnd returns local midnight at the end of dateKey in loc.
func DayEnd(dateKey string, loc *time.Location) (time.Time, error) {
	start, err := DayStart(dateKey, loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 1), nil
}

// Available reports whether the day may be read or created. A day becomes
// available at dayStart−24h; days before accountStart (when set) never do.
func Available(now time.Time, dateKey string, loc *time.Location, accountStart string) bool {
	if accountStart != "" && dateKey < accountStart {
		return false
	}
	start, err := DayStart(dateKey, loc)
	if err != nil {
		return false
	}
	return !now.Before(start.Add(-AvailableLead))
}

// Editable reports whether edits are accepted: the inclusive window
// [dayStart−24h, dayEnd+48h], under the same account floor as Available.
func Editable(now time.Time, dateKey string, loc *time.Location, accountStart string) bool {
	if !Available(now, dateKey, loc, accountStart) {
		return false
	}
	end, err := DayEnd(dateKey, loc)
	if err != nil {
		return false
	}
	return !now.After(end.Add(EditGrace))
}

// Locked reports whether the day's edit window has fully elapsed.
func Locked(now time.Time, dateKey string, loc *time.Location) bool {
	end, err := DayEnd(dateKey, loc)
	if err != nil {
		return false
	}
	return now.After(end.Add(EditGrace))
}

// DocStatus derives the client-visible status from the persisted status
// (empty string when no row exists). Persisted terminal states pass through;
// a locked day that was never closed reads as pending_auto_close until the
// sweep reaches it.
func DocStatus(persisted string, now time.Time, dateKey string, loc *time.Location) Status {
	switch persisted {
	case string(StatusClosed):
		return StatusClosed
	case string(StatusAutoClosed):
		return StatusAutoClosed
	}
	if Locked(now, dateKey, loc) {
		return StatusPendingAutoClose
	}
	return StatusOpen
}

// ShouldAutoClose reports whether the sweep must transition the day:
// still open, and past its lock boundary.
func ShouldAutoClose(persisted string, now time.Time, dateKey string, loc *time.Location) bool {
	return persisted == string(StatusOpen) && Locked(now, dateKey, loc)
}
