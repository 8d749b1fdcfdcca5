package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/models"
)

func newCalendarFixture(t *testing.T, entries []*models.Entry, users ...*models.User) (*CalendarService, *mockEntryRepo) {
	t.Helper()
	cfg := contestConfigForTest()
	entryRepo := newMockEntryRepo(entries...)
	userRepo := newMockUserRepo(users...)
	svc := NewCalendarService(entryRepo, userRepo, contest.NewSchedule(cfg), cfg, nil)
	svc.now = func() time.Time { return time.Date(2026, time.September, 15, 12, 0, 0, 0, time.UTC) }
	return svc, entryRepo
}

func TestCalendarMonthCells(t *testing.T) {
	complete := &models.Entry{ID: "e1", AuthorID: "s1", Date: time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC), MinutesModerate: 70, SugaryDrinks: 1}
	partial := &models.Entry{ID: "e2", AuthorID: "s1", Date: time.Date(2026, time.September, 4, 0, 0, 0, 0, time.UTC), MinutesModerate: 10}
	svc, _ := newCalendarFixture(t, []*models.Entry{complete, partial}, studentAt("s1", "colony"))

	month, err := svc.Month(context.Background(), authz.NewSubject("s1", ""), "")
	require.NoError(t, err)

	assert.Equal(t, "s1", month.StudentID)
	assert.Len(t, month.Days, 30)
	assert.Equal(t, 2, month.DaysLogged)
	assert.Equal(t, 1, month.DaysComplete)

	day3 := month.Days[2]
	assert.True(t, day3.Logged)
	assert.True(t, day3.Complete)
	assert.Equal(t, "e1", day3.EntryID)

	day4 := month.Days[3]
	assert.True(t, day4.Logged)
	assert.False(t, day4.Complete)

	// days after "today" are flagged so the UI can disable them
	assert.True(t, month.Days[20].Future)
	assert.False(t, month.Days[10].Future)
}

func TestCalendarVisibility(t *testing.T) {
	svc, _ := newCalendarFixture(t, nil,
		teacherAt("t1", "colony"),
		studentAt("s1", "colony"),
		studentAt("s2", "goldenview"),
		bossUser("b1"))

	_, err := svc.Month(context.Background(), authz.NewSubject("t1", ""), "s1")
	require.NoError(t, err)

	_, err = svc.Month(context.Background(), authz.NewSubject("t1", ""), "s2")
	require.Error(t, err)

	_, err = svc.Month(context.Background(), authz.NewSubject("b1", ""), "s2")
	require.NoError(t, err)

	// a teacher acting as a student sees that student's calendar by default
	month, err := svc.Month(context.Background(), authz.NewSubject("t1", "s1"), "")
	require.NoError(t, err)
	assert.Equal(t, "s1", month.StudentID)
}
