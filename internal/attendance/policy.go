// Package attendance decides and persists at most one attendance
// outcome per student, course and calendar day.
package attendance

import (
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// CutoffPolicy is a teacher's late-arrival boundary, passed explicitly
// into every Record call.
type CutoffPolicy struct {
	Hour   int
	Minute int
}

// DefaultCutoff matches the default settings value of 09:15.
var DefaultCutoff = CutoffPolicy{Hour: 9, Minute: 15}

// ParseCutoff parses an "HH:MM" cutoff value. Empty input yields the
// default policy.
func ParseCutoff(s string) (CutoffPolicy, error) {
	if s == "" {
		return DefaultCutoff, nil
	}
	var p CutoffPolicy
	if _, err := fmt.Sscanf(s, "%d:%d", &p.Hour, &p.Minute); err != nil {
		return CutoffPolicy{}, fmt.Errorf("invalid cutoff time %q: %w", s, err)
	}
	if p.Hour < 0 || p.Hour > 23 || p.Minute < 0 || p.Minute > 59 {
		return CutoffPolicy{}, fmt.Errorf("invalid cutoff time %q", s)
	}
	return p, nil
}

// StatusAt returns late when now's time-of-day is strictly after the
// cutoff, present otherwise. Absent is never produced here.
func (p CutoffPolicy) StatusAt(now time.Time) database.AttendanceStatus {
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), p.Hour, p.Minute, 0, 0, now.Location())
	if now.After(cutoff) {
		return database.StatusLate
	}
	return database.StatusPresent
}

// SessionDate truncates the marking instant to local midnight, the
// calendar-day key used for deduplication.
func SessionDate(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
