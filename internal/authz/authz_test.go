package authz

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthy-futures/contest-api/internal/models"
)

type fakeDirectory struct {
	users map[string]*models.User
	err   error
}

func (d *fakeDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	if u, ok := d.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type fakeEntries struct {
	entries map[string]*models.Entry
}

func (s *fakeEntries) FindByID(ctx context.Context, id string) (*models.Entry, error) {
	if e, ok := s.entries[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type fakeWindow struct{ open bool }

func (w fakeWindow) Open() bool { return w.open }

func student(id, school string) *models.User {
	return &models.User{ID: id, Role: models.RoleStudent, School: school, Grade: "5", FullName: "Student " + id, Active: true}
}

func teacher(id, school string) *models.User {
	return &models.User{ID: id, Role: models.RoleTeacher, School: school, FullName: "Teacher " + id, Active: true}
}

func boss(id string) *models.User {
	return &models.User{ID: id, Role: models.RoleBoss, FullName: "Boss " + id, Active: true}
}

func newFixture(open bool) (*Evaluator, *fakeDirectory, *fakeEntries) {
	dir := &fakeDirectory{users: map[string]*models.User{
		"t1": teacher("t1", "colony"),
		"t2": teacher("t2", "goldenview"),
		"s1": student("s1", "colony"),
		"s2": student("s2", "goldenview"),
		"s3": student("s3", "colony"),
		"b1": boss("b1"),
	}}
	entries := &fakeEntries{entries: map[string]*models.Entry{
		"e1": {ID: "e1", AuthorID: "s1", Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		"e2": {ID: "e2", AuthorID: "s2", Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
	}}
	return NewEvaluator(dir, entries, fakeWindow{open: open}), dir, entries
}

func TestOwns(t *testing.T) {
	t1 := teacher("t1", "colony")
	s1 := student("s1", "colony")
	s2 := student("s2", "goldenview")
	noSchool := teacher("t3", "")
	orphan := student("s4", "")

	assert.True(t, Owns(t1, t1), "self-ownership holds for every user")
	assert.True(t, Owns(s1, s1))
	assert.True(t, Owns(t1, s1), "teacher owns same-school student")
	assert.False(t, Owns(t1, s2), "different school")
	assert.False(t, Owns(s1, s2), "students own no one else")
	assert.False(t, Owns(noSchool, orphan), "empty schools never match")
	assert.False(t, Owns(boss("b1"), s1), "boss has no school and owns no students")
	assert.False(t, Owns(nil, s1))
	assert.False(t, Owns(t1, nil))
}

func TestCanDeniesUnauthenticated(t *testing.T) {
	ev, _, _ := newFixture(true)
	ok, err := ev.Can(context.Background(), Subject{}, ActionReview, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanDeniesUnknownActionAndObject(t *testing.T) {
	ev, _, _ := newFixture(true)
	sub := NewSubject("t1", "")

	ok, err := ev.Can(context.Background(), sub, Action("publish"), ObjectEntry, "e1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ev.Can(context.Background(), sub, ActionReview, ObjectType("comment"), "e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanDeniesInactiveActor(t *testing.T) {
	ev, dir, _ := newFixture(true)
	dir.users["t1"].Active = false

	ok, err := ev.Can(context.Background(), NewSubject("t1", ""), ActionCreate, ObjectUser, IDNew)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanInvalidRoleIsHardError(t *testing.T) {
	ev, dir, _ := newFixture(true)
	dir.users["x1"] = &models.User{ID: "x1", Role: "", FullName: "No Role", Active: true}

	_, err := ev.Can(context.Background(), NewSubject("x1", ""), ActionReview, ObjectEntry, "e1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRole))
}

func TestCanDirectoryFailurePropagates(t *testing.T) {
	ev, dir, _ := newFixture(true)
	dir.err = errors.New("connection reset")

	_, err := ev.Can(context.Background(), NewSubject("t1", ""), ActionReview, ObjectEntry, "e1")
	assert.Error(t, err)
}

func TestUserCreateRequiresTeacherOrBoss(t *testing.T) {
	ev, _, _ := newFixture(true)

	for actor, want := range map[string]bool{"s1": false, "s2": false, "t1": true, "b1": true} {
		ok, err := ev.Can(context.Background(), NewSubject(actor, ""), ActionCreate, ObjectUser, IDNew)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "actor %s", actor)
	}
}

func TestUserReviewRequiresAllSentinel(t *testing.T) {
	ev, _, _ := newFixture(true)

	ok, err := ev.Can(context.Background(), NewSubject("t1", ""), ActionReview, ObjectUser, IDAll)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Can(context.Background(), NewSubject("t1", ""), ActionReview, ObjectUser, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ev.Can(context.Background(), NewSubject("s1", ""), ActionReview, ObjectUser, IDAll)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserDeleteNeverSelfOrActiveIdentity(t *testing.T) {
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("t1", ""), ActionDelete, ObjectUser, "t1")
	require.NoError(t, err)
	assert.False(t, ok, "self-deletion always denied")

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionDelete, ObjectUser, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "deleting the active identity always denied")

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionDelete, ObjectUser, "s3")
	require.NoError(t, err)
	assert.True(t, ok, "owned student who is neither self nor active identity")

	ok, err = ev.Can(ctx, NewSubject("t1", ""), ActionDelete, ObjectUser, "s2")
	require.NoError(t, err)
	assert.False(t, ok, "unowned student")
}

func TestUserEditRequiresActiveIdentityAndOwnership(t *testing.T) {
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("t1", "s1"), ActionEdit, ObjectUser, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionEdit, ObjectUser, "s3")
	require.NoError(t, err)
	assert.False(t, ok, "target must be the active identity")

	ok, err = ev.Can(ctx, NewSubject("t1", "s2"), ActionEdit, ObjectUser, "s2")
	require.NoError(t, err)
	assert.False(t, ok, "actor does not own the active identity")

	ok, err = ev.Can(ctx, NewSubject("s1", ""), ActionEdit, ObjectUser, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "self edit")
}

func TestUserSwitchRequiresOwnership(t *testing.T) {
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("t1", ""), ActionSwitch, ObjectUser, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Can(ctx, NewSubject("t1", ""), ActionSwitch, ObjectUser, "s2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ev.Can(ctx, NewSubject("t1", ""), ActionSwitch, ObjectUser, "ghost")
	require.NoError(t, err)
	assert.False(t, ok, "unknown target denies without error")
}

func TestEntryCreateRequiresOpenWindow(t *testing.T) {
	closed, _, _ := newFixture(false)
	open, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := closed.Can(ctx, NewSubject("s1", ""), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.False(t, ok, "closed window denies regardless of profile completeness")

	ok, err = open.Can(ctx, NewSubject("s1", ""), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEntryCreateRequiresCompleteProfile(t *testing.T) {
	ev, dir, _ := newFixture(true)
	dir.users["s1"].Grade = ""

	ok, err := ev.Can(context.Background(), NewSubject("s1", ""), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntryCreateRequiresStudentAuthor(t *testing.T) {
	ev, dir, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("t1", ""), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.False(t, ok, "an unswitched teacher cannot author an entry")

	ok, err = ev.Can(ctx, NewSubject("b1", ""), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.False(t, ok, "boss cannot author an entry")

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.True(t, ok, "teacher switched onto a student writes for the student")

	dir.users["s1"].Active = false
	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionCreate, ObjectEntry, IDNew)
	require.NoError(t, err)
	assert.False(t, ok, "deactivated acting identity denies")
}

func TestEntryEditFollowsActiveIdentity(t *testing.T) {
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("s1", ""), ActionEdit, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.True(t, ok, "author edits own entry")

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionEdit, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.True(t, ok, "teacher switched onto the author")

	ok, err = ev.Can(ctx, NewSubject("t1", ""), ActionEdit, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.False(t, ok, "teacher without switching is not the author")
}

func TestEntryEditDeniedWhenWindowClosed(t *testing.T) {
	ev, _, _ := newFixture(false)

	ok, err := ev.Can(context.Background(), NewSubject("s1", ""), ActionEdit, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntryReviewOwnPostOnly(t *testing.T) {
	ev, _, _ := newFixture(false)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("s1", ""), ActionReview, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.True(t, ok, "own entry, window state irrelevant for review")

	ok, err = ev.Can(ctx, NewSubject("s1", ""), ActionReview, ObjectEntry, "e2")
	require.NoError(t, err)
	assert.False(t, ok, "someone else's entry")

	ok, err = ev.Can(ctx, NewSubject("t1", "s1"), ActionReview, ObjectEntry, "e1")
	require.NoError(t, err)
	assert.True(t, ok, "review allowed via active identity")
}

func TestEntryMissingIsDenialNotError(t *testing.T) {
	ev, _, _ := newFixture(true)

	ok, err := ev.Can(context.Background(), NewSubject("s1", ""), ActionEdit, ObjectEntry, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportAccess(t *testing.T) {
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  string
		school string
		want   bool
	}{
		{"student denied for own school", "s1", "colony", false},
		{"teacher own school", "t1", "colony", true},
		{"teacher other school", "t1", "teeland", false},
		{"boss any school", "b1", "teeland", true},
		{"boss another school", "b1", "colony", true},
		{"empty school key", "t1", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := ev.Can(ctx, NewSubject(tc.actor, ""), ActionReview, ObjectReport, tc.school)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestSwitchScenario(t *testing.T) {
	// Teacher in "colony" may switch onto their own student but not onto a
	// "goldenview" student.
	ev, _, _ := newFixture(true)
	ctx := context.Background()

	ok, err := ev.Can(ctx, NewSubject("t1", ""), ActionSwitch, ObjectUser, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Can(ctx, NewSubject("t1", ""), ActionSwitch, ObjectUser, "s2")
	require.NoError(t, err)
	assert.False(t, ok)
}
