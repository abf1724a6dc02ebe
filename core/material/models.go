package material

import (
	"time"

	"github.com/lumenedu/lumen/core"
)

// Material is a text resource published by a teacher. Rows are owned by
// the teacher identity that created them and are immutable once stored.
type Material struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewMaterial contains the information needed to publish a Material.
type NewMaterial struct {
	Content string `json:"content" validate:"required"`
}

func (nm *NewMaterial) Validate() error {
	nm.Content = core.CleanString(nm.Content)
	return core.Validate.Struct(nm)
}
