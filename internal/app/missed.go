package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"daybook/api/internal/dayclock"
	"daybook/api/internal/schema"
	"daybook/api/internal/store"
)

// streakScanCap bounds the backward walk; nobody's contiguous missed run is
// longer than a year of documented days.
const streakScanCap = 366

// IsMissedDay reports whether a day slipped past its lock window without a
// complete reflection. An auto-closed day with a finished reflection is not
// missed; a manually closed day never is.
func IsMissedDay(doc store.Document, now time.Time, loc *time.Location) bool {
	if doc.DocType != store.DocTypeDay {
		return false
	}
	if doc.Status == store.StatusClosed {
		return false
	}
	if !dayclock.Locked(now, doc.DocKey, loc) {
		return false
	}
	_, reflectionPresent := schema.DayFacts(doc.Content)
	return !reflectionPresent
}

// ConsecutiveMissedCount walks backward day-by-day from the most recent
// fully-locked day, counting the contiguous missed run. Days still inside
// their own edit window are skipped first; the count stops at the first
// non-missed or undocumented day, or at the account start floor.
func (s *Service) ConsecutiveMissedCount(ctx context.Context, userID string) (int, error) {
	settings, loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()

	cursor := now.In(loc)
	for !dayclock.Locked(now, cursor.Format("2006-01-02"), loc) {
		cursor = cursor.AddDate(0, 0, -1)
	}

	count := 0
	for i := 0; i < streakScanCap; i++ {
		key := cursor.Format("2006-01-02")
		if settings.AccountStartDate != "" && key < settings.AccountStartDate {
			break
		}
		doc, err := s.store.GetDocument(ctx, userID, store.DocTypeDay, key)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return 0, err
		}
		if !IsMissedDay(doc, now, loc) {
			break
		}
		count++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return count, nil
}
