package portal

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/services/identity"
)

var errSelfDelete = errors.New("you cannot delete your own account")

// Admin is the admin dashboard: all profiles, ordered by name. Deletes
// are removed from local state only after the store confirms them.
type Admin struct {
	usr   user.User
	store identity.Store

	mu       sync.Mutex
	profiles []user.Profile
}

func NewAdmin(usr user.User, store identity.Store) *Admin {
	return &Admin{usr: usr, store: store}
}

func (d *Admin) User() user.User { return d.usr }

// Load fetches all profiles.
func (d *Admin) Load(ctx context.Context) error {
	profiles, err := d.store.ListProfiles(ctx)
	if err != nil {
		return errors.Wrap(err, "loading profiles")
	}
	d.mu.Lock()
	d.profiles = profiles
	d.mu.Unlock()
	return nil
}

// Profiles returns a copy of the local list.
func (d *Admin) Profiles() []user.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]user.Profile, len(d.profiles))
	copy(out, d.profiles)
	return out
}

// Delete removes a profile. An admin may not delete their own identity:
// that precondition is checked here, before any remote call, because
// the store does not enforce it (known gap). The auth record behind a
// deleted profile is orphaned, not removed.
func (d *Admin) Delete(ctx context.Context, targetID string) error {
	if targetID == d.usr.ID {
		return core.NewValidationError(errSelfDelete, core.FieldError{Field: "id", Error: errSelfDelete.Error()})
	}

	if err := d.store.DeleteProfile(ctx, targetID); err != nil {
		return errors.Wrap(err, "deleting profile")
	}

	d.mu.Lock()
	kept := d.profiles[:0]
	for _, p := range d.profiles {
		if p.ID != targetID {
			kept = append(kept, p)
		}
	}
	d.profiles = kept
	d.mu.Unlock()
	return nil
}
