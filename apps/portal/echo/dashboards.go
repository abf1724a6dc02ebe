package echoapi

import (
	"context"
	"sync"

	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/portal"
	"github.com/lumenedu/lumen/services/completion"
	"github.com/lumenedu/lumen/services/identity"
)

// dashboards holds the mounted dashboard of the current resolved user.
// A dashboard mounts lazily on first access — performing its scoped
// read then — and unmounts whenever the resolved identity changes, so
// no list state survives across users.
type dashboards struct {
	store         identity.Store
	completionSvc completion.Service

	mu      sync.Mutex
	userID  string
	student *portal.Student
	teacher *portal.Teacher
	admin   *portal.Admin
}

// sync drops mounted dashboards when the identity changed.
func (d *dashboards) sync(usr user.User) {
	if d.userID != usr.ID {
		d.userID = usr.ID
		d.student, d.teacher, d.admin = nil, nil, nil
	}
}

func (d *dashboards) studentFor(usr user.User) *portal.Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sync(usr)
	if d.student == nil {
		d.student = portal.NewStudent(usr, d.completionSvc)
	}
	return d.student
}

func (d *dashboards) teacherFor(ctx context.Context, usr user.User) (*portal.Teacher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sync(usr)
	if d.teacher == nil {
		t := portal.NewTeacher(usr, d.store)
		if err := t.Load(ctx); err != nil {
			return nil, err
		}
		d.teacher = t
	}
	return d.teacher, nil
}

func (d *dashboards) adminFor(ctx context.Context, usr user.User) (*portal.Admin, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sync(usr)
	if d.admin == nil {
		a := portal.NewAdmin(usr, d.store)
		if err := a.Load(ctx); err != nil {
			return nil, err
		}
		d.admin = a
	}
	return d.admin, nil
}
