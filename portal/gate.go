// Package portal holds the role dashboards and the gate that decides
// which one an identity may reach.
package portal

import (
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/core/user"
)

// View identifies what the UI should render.
type View string

const (
	ViewLoading  View = "loading"
	ViewLogin    View = "login"
	ViewRegister View = "register"
	ViewStudent  View = "student-dashboard"
	ViewTeacher  View = "teacher-dashboard"
	ViewAdmin    View = "admin-dashboard"
)

// Resolve maps the session state to exactly one view. It is a pure
// function with no side effects. A resolved role outside the known set
// routes back to the login view rather than crashing; so does a session
// whose profile never resolved.
func Resolve(st session.State, usr user.User) View {
	switch st {
	case session.StateInitializing:
		return ViewLoading
	case session.StateAuthenticated:
		switch usr.Role {
		case user.RoleStudent:
			return ViewStudent
		case user.RoleTeacher:
			return ViewTeacher
		case user.RoleAdmin:
			return ViewAdmin
		default:
			return ViewLogin
		}
	default: // unauthenticated or unresolved profile
		return ViewLogin
	}
}

// ResolvePath additionally honors the requested path: the register view
// is reachable only while unauthenticated, and unknown paths always
// fall back to the root resolution — never a blank page.
func ResolvePath(path string, st session.State, usr user.User) View {
	root := Resolve(st, usr)
	if path == "/register" && root == ViewLogin {
		return ViewRegister
	}
	return root
}
