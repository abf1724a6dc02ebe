package portal

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/services/identity"
)

// Teacher is the teacher dashboard: the teacher's own materials, newest
// first. The list is loaded once on mount; afterwards every successful
// add splices the store-returned row at the head — the list is never
// re-fetched.
type Teacher struct {
	usr   user.User
	store identity.Store

	mu        sync.Mutex
	materials []material.Material
}

func NewTeacher(usr user.User, store identity.Store) *Teacher {
	return &Teacher{usr: usr, store: store}
}

func (d *Teacher) User() user.User { return d.usr }

// Load fetches the teacher's materials, scoped to their own identity.
func (d *Teacher) Load(ctx context.Context) error {
	materials, err := d.store.ListMaterials(ctx, d.usr.ID)
	if err != nil {
		return errors.Wrap(err, "loading materials")
	}
	d.mu.Lock()
	d.materials = materials
	d.mu.Unlock()
	return nil
}

// Materials returns a copy of the local list, newest first.
func (d *Teacher) Materials() []material.Material {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]material.Material, len(d.materials))
	copy(out, d.materials)
	return out
}

// Add publishes a material. Local state is only updated from the row
// the store returns, never assumed.
func (d *Teacher) Add(ctx context.Context, nm material.NewMaterial) (material.Material, error) {
	if err := nm.Validate(); err != nil {
		return material.Material{}, err
	}

	row, err := d.store.InsertMaterial(ctx, d.usr.ID, nm.Content)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "adding material")
	}

	d.mu.Lock()
	d.materials = append([]material.Material{row}, d.materials...)
	d.mu.Unlock()
	return row, nil
}
