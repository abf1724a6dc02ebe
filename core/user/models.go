package user

import (
	"time"

	"github.com/lumenedu/lumen/core"
)

// Role is the closed set of account types known to the portal.
// Anything else coming back from the identity store parses to
// RoleUnknown and never reaches a dashboard.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
	RoleUnknown Role = ""
)

func ParseRole(s string) Role {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return Role(s)
	default:
		return RoleUnknown
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Roles lists the selectable account types, for registration forms.
var Roles = []RoleChoice{
	{Name: "Student", Value: RoleStudent},
	{Name: "Teacher", Value: RoleTeacher},
	{Name: "Admin", Value: RoleAdmin},
}

type RoleChoice struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// Profile is the role-bearing record describing a registered person,
// keyed by the identity id. It is created by the identity store at
// registration time; this client only ever reads or deletes it.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	StudentID    string    `json:"student_id,omitempty"`
	Major        string    `json:"major,omitempty"`
	AcademicYear string    `json:"academic_year,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// User is the resolved view model: identity fields (id, email) merged
// with Profile fields. It only exists when both halves are available
// and is never exposed with an invalid role.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	StudentID    string `json:"student_id,omitempty"`
	Major        string `json:"major,omitempty"`
	AcademicYear string `json:"academic_year,omitempty"`
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }

// ResolveUser merges identity fields with a Profile.
func ResolveUser(id, email string, p Profile) User {
	return User{
		ID:           id,
		Email:        email,
		Name:         p.Name,
		Role:         p.Role,
		StudentID:    p.StudentID,
		Major:        p.Major,
		AcademicYear: p.AcademicYear,
	}
}

// Registration contains the information needed to open a new account.
// Student fields are required when Role is RoleStudent.
type Registration struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            Role   `json:"role" validate:"required,role"`
	StudentID       string `json:"student_id"`
	Major           string `json:"major"`
	AcademicYear    string `json:"academic_year"`
}

func (r *Registration) Validate() error {
	r.Name = core.CleanString(r.Name)
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.StudentID = core.CleanString(r.StudentID)
	r.Major = core.CleanString(r.Major)
	r.AcademicYear = core.CleanString(r.AcademicYear)
	return core.Validate.Struct(r)
}
