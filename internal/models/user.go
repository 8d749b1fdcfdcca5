package models

import "time"

// UserRole is the closed set of roles in the contest. BOSS is a first-class
// assigned role, not an override derived from an admin account.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
	RoleBoss    UserRole = "BOSS"
)

// Valid reports whether the role is one of the known values.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleBoss:
		return true
	}
	return false
}

// User represents a contest participant or administrator. School is the
// school key the user belongs to; boss accounts carry no school.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	School       string     `db:"school" json:"school"`
	Grade        string     `db:"grade" json:"grade"`
	Goal         string     `db:"goal" json:"goal"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ProfileComplete reports whether the required profile fields are filled in.
// Students must also name a grade; teachers and bosses only need a name.
func (u *User) ProfileComplete() bool {
	if u.FullName == "" {
		return false
	}
	if u.Role == RoleStudent {
		return u.School != "" && u.Grade != ""
	}
	return true
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	School    string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
