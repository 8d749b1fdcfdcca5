package models

import "time"

// Entry is one student's daily activity log. At most one row exists per
// (author, calendar date); the author is always a student.
type Entry struct {
	ID              string    `db:"id" json:"id"`
	AuthorID        string    `db:"author_id" json:"author_id"`
	Date            time.Time `db:"entry_date" json:"date"`
	MinutesModerate int       `db:"minutes_moderate" json:"minutes_moderate"`
	MinutesVigorous int       `db:"minutes_vigorous" json:"minutes_vigorous"`
	SugaryDrinks    int       `db:"sugary_drinks" json:"sugary_drinks"`
	FruitVeggies    int       `db:"fruit_veggies" json:"fruit_veggies"`
	Notes           string    `db:"notes" json:"notes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ExerciseMinutes sums the fields that count toward the daily activity goal.
func (e *Entry) ExerciseMinutes() int {
	return e.MinutesModerate + e.MinutesVigorous
}

// Complete reports whether the day meets the contest thresholds.
func (e *Entry) Complete(minExerciseMinutes, maxSugaryDrinks int) bool {
	return e.ExerciseMinutes() >= minExerciseMinutes && e.SugaryDrinks <= maxSugaryDrinks
}

// EntryFilter captures filtering criteria for listing entries.
type EntryFilter struct {
	AuthorID string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
