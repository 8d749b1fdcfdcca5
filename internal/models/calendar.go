package models

import "time"

// CalendarDay is one day of the contest month as shown on the calendar.
type CalendarDay struct {
	Date     time.Time `json:"date"`
	EntryID  string    `json:"entry_id,omitempty"`
	Logged   bool      `json:"logged"`
	Complete bool      `json:"complete"`
	Future   bool      `json:"future"`
}

// CalendarMonth is the month view for one student.
type CalendarMonth struct {
	StudentID    string        `json:"student_id"`
	Year         int           `json:"year"`
	Month        time.Month    `json:"month"`
	Days         []CalendarDay `json:"days"`
	DaysLogged   int           `json:"days_logged"`
	DaysComplete int           `json:"days_complete"`
}
