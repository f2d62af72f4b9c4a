package purge

import "time"

// DefaultDaysToRetain is used when no retention is configured.
const DefaultDaysToRetain = 7

// Cutoff returns the start of the calendar day that lies daysToRetain days
// before now, in now's location. Rows created strictly before the cutoff
// are purgeable; a row created exactly at the cutoff is kept.
func Cutoff(now time.Time, daysToRetain int) (time.Time, error) {
	if err := ValidateDaysToRetain(daysToRetain); err != nil {
		return time.Time{}, err
	}
	y, m, d := now.Date()
	return time.Date(y, m, d-daysToRetain, 0, 0, 0, 0, now.Location()), nil
}

// ValidateDaysToRetain rejects negative retention windows.
func ValidateDaysToRetain(daysToRetain int) error {
	if daysToRetain < 0 {
		return &ConfigurationError{Field: "days to retain", Value: daysToRetain, Reason: "must not be negative"}
	}
	return nil
}
