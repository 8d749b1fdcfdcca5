// Package authz holds the contest's access control rules. Every mutating
// request resolves its effective acting identity first, then asks this
// package whether that identity may perform the action. Rules are evaluated
// against current collaborator state on every call; nothing is cached and
// unknown combinations deny.
package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/healthy-futures/contest-api/internal/models"
)

// Action is the closed set of things a subject can do.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionReview Action = "review"
	ActionSwitch Action = "switch"
)

// Valid reports whether the action is a known value.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete, ActionReview, ActionSwitch:
		return true
	}
	return false
}

// ObjectType is the closed set of things actions apply to.
type ObjectType string

const (
	ObjectEntry  ObjectType = "entry"
	ObjectUser   ObjectType = "user"
	ObjectReport ObjectType = "report"
)

// Valid reports whether the object type is a known value.
func (o ObjectType) Valid() bool {
	switch o {
	case ObjectEntry, ObjectUser, ObjectReport:
		return true
	}
	return false
}

// Object ID sentinels. IDNew marks a not-yet-persisted entry, IDAll marks
// the full user roster.
const (
	IDNew = "new"
	IDAll = "all"
)

// Subject carries the authenticated actor and the effective acting identity.
// ActiveID equals ActorID unless a teacher has switched onto a student.
type Subject struct {
	ActorID  string
	ActiveID string
}

// NewSubject builds a subject, defaulting the active identity to the actor.
func NewSubject(actorID, activeID string) Subject {
	if activeID == "" {
		activeID = actorID
	}
	return Subject{ActorID: actorID, ActiveID: activeID}
}

// ErrInvalidRole is returned when a user record carries no known role.
// Records like this violate a storage invariant; silently mapping them to
// any particular role would defeat fail-closed evaluation.
var ErrInvalidRole = errors.New("user has no valid role")

// Directory resolves user records by id.
type Directory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EntrySource resolves activity entries by id.
type EntrySource interface {
	FindByID(ctx context.Context, id string) (*models.Entry, error)
}

// Window reports whether the contest currently accepts entry mutations.
type Window interface {
	Open() bool
}

// Evaluator decides (subject, action, object) requests. It holds no state
// of its own and is safe for concurrent use.
type Evaluator struct {
	users   Directory
	entries EntrySource
	window  Window
}

// NewEvaluator constructs an evaluator over the given collaborators.
func NewEvaluator(users Directory, entries EntrySource, window Window) *Evaluator {
	return &Evaluator{users: users, entries: entries, window: window}
}

// Can reports whether the subject may perform action on the identified
// object. Denials return (false, nil); errors are reserved for collaborator
// failures and invariant violations. Checks run cheapest first: actor
// authentication, then the action/object whitelist, then lookups.
func (e *Evaluator) Can(ctx context.Context, sub Subject, action Action, object ObjectType, objectID string) (bool, error) {
	if sub.ActorID == "" {
		return false, nil
	}
	if !action.Valid() || !object.Valid() {
		return false, nil
	}

	actor, err := e.lookupUser(ctx, sub.ActorID)
	if err != nil {
		return false, err
	}
	if actor == nil || !actor.Active {
		return false, nil
	}
	if !actor.Role.Valid() {
		return false, fmt.Errorf("%w: user %s has role %q", ErrInvalidRole, actor.ID, actor.Role)
	}

	activeID := sub.ActiveID
	if activeID == "" {
		activeID = sub.ActorID
	}

	switch object {
	case ObjectEntry:
		return e.canEntry(ctx, actor, activeID, action, objectID)
	case ObjectUser:
		return e.canUser(ctx, actor, activeID, action, objectID)
	case ObjectReport:
		return canReport(actor, objectID), nil
	}
	return false, nil
}

// canEntry covers daily activity entries. A missing entry is a denial, not
// an error, so existence never leaks to callers.
func (e *Evaluator) canEntry(ctx context.Context, actor *models.User, activeID string, action Action, objectID string) (bool, error) {
	var entry *models.Entry
	if objectID != IDNew {
		var err error
		entry, err = e.lookupEntry(ctx, objectID)
		if err != nil {
			return false, err
		}
		if entry == nil {
			return false, nil
		}
	}

	if !actor.ProfileComplete() {
		return false, nil
	}

	switch action {
	case ActionCreate:
		if objectID != IDNew || !e.window.Open() {
			return false, nil
		}
		// Entries belong to students. Teachers and the boss write one
		// only while switched onto a student.
		author := actor
		if activeID != actor.ID {
			acting, err := e.lookupUser(ctx, activeID)
			if err != nil {
				return false, err
			}
			if acting == nil || !acting.Active {
				return false, nil
			}
			author = acting
		}
		return author.Role == models.RoleStudent, nil
	case ActionEdit, ActionDelete:
		if entry == nil {
			return false, nil
		}
		return e.window.Open() && entry.AuthorID == activeID, nil
	case ActionReview:
		if entry == nil {
			return false, nil
		}
		return entry.AuthorID == activeID || entry.AuthorID == actor.ID, nil
	}
	return false, nil
}

func (e *Evaluator) canUser(ctx context.Context, actor *models.User, activeID string, action Action, objectID string) (bool, error) {
	switch action {
	case ActionCreate:
		return actor.Role == models.RoleTeacher || actor.Role == models.RoleBoss, nil

	case ActionReview:
		allowed := actor.Role == models.RoleTeacher || actor.Role == models.RoleBoss
		return allowed && objectID == IDAll, nil

	case ActionEdit:
		// Editing goes through the active identity: the target must be the
		// identity currently acted as, and the actor must own it.
		if objectID != activeID {
			return false, nil
		}
		target, err := e.lookupUser(ctx, objectID)
		if err != nil {
			return false, err
		}
		return Owns(actor, target), nil

	case ActionDelete:
		// Neither the actor nor whoever it is acting as can be deleted.
		if objectID == actor.ID || objectID == activeID {
			return false, nil
		}
		target, err := e.lookupUser(ctx, objectID)
		if err != nil {
			return false, err
		}
		return Owns(actor, target), nil

	case ActionSwitch:
		target, err := e.lookupUser(ctx, objectID)
		if err != nil {
			return false, err
		}
		return Owns(actor, target), nil
	}
	return false, nil
}

// canReport gates the per-school report. Students never see reports; boss
// sees every school; teachers only their own.
func canReport(actor *models.User, school string) bool {
	if school == "" {
		return false
	}
	switch actor.Role {
	case models.RoleBoss:
		return true
	case models.RoleTeacher:
		return school == actor.School
	}
	return false
}

// Owns reports whether owner may act on behalf of owned: every user owns
// themselves, and a teacher owns the students of their own school. The
// relation is recomputed from current records on every call and never
// persisted, so school reassignment revokes it immediately.
func Owns(owner, owned *models.User) bool {
	if owner == nil || owned == nil {
		return false
	}
	if owner.ID == owned.ID {
		return true
	}
	return owner.Role == models.RoleTeacher &&
		owned.Role == models.RoleStudent &&
		owner.School != "" &&
		owner.School == owned.School
}

func (e *Evaluator) lookupUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	user, err := e.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: load user %s: %w", id, err)
	}
	return user, nil
}

func (e *Evaluator) lookupEntry(ctx context.Context, id string) (*models.Entry, error) {
	if id == "" {
		return nil, nil
	}
	entry, err := e.entries.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: load entry %s: %w", id, err)
	}
	return entry, nil
}
