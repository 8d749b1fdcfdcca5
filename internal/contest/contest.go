// Package contest defines the active contest window.
package contest

import (
	"time"

	"github.com/healthy-futures/contest-api/pkg/config"
)

// Schedule decides whether the contest is accepting activity entries.
// The window is a single (year, month) pair. ForceOpen bypasses the date
// check; it is a staging knob, never set in production.
type Schedule struct {
	Year      int
	Month     time.Month
	ForceOpen bool

	now func() time.Time
}

// NewSchedule builds a schedule from configuration.
func NewSchedule(cfg config.ContestConfig) *Schedule {
	return &Schedule{
		Year:      cfg.Year,
		Month:     cfg.Month,
		ForceOpen: cfg.ForceOpen,
		now:       time.Now,
	}
}

// Open reports whether entries may currently be created or edited.
func (s *Schedule) Open() bool {
	if s.ForceOpen {
		return true
	}
	now := s.now().UTC()
	return now.Year() == s.Year && now.Month() == s.Month
}

// Window returns the first and last instant of the contest month.
func (s *Schedule) Window() (start, end time.Time) {
	start = time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// Days returns the number of days in the contest month.
func (s *Schedule) Days() int {
	start := time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 1, -1).Day()
}

// Contains reports whether the given date falls inside the contest month.
func (s *Schedule) Contains(date time.Time) bool {
	date = date.UTC()
	return date.Year() == s.Year && date.Month() == s.Month
}
