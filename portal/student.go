package portal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/services/completion"
)

// Message authors.
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

// Message is one entry of the student's local transcript. The
// transcript lives in view state only and is never persisted.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is a student's free-text question for the assistant.
type Question struct {
	Content string `json:"content" validate:"required"`
}

func (q *Question) Validate() error {
	q.Content = core.CleanString(q.Content)
	return core.Validate.Struct(q)
}

var errNoCompletion = errors.New("completion service not configured")

// Student is the student dashboard: a local transcript backed by the
// completion service. It issues no identity-store reads on mount.
type Student struct {
	usr user.User
	svc completion.Service

	mu         sync.Mutex
	transcript []Message
}

func NewStudent(usr user.User, svc completion.Service) *Student {
	return &Student{usr: usr, svc: svc}
}

func (d *Student) User() user.User { return d.usr }

// Transcript returns a copy of the local message list, oldest first.
func (d *Student) Transcript() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.transcript))
	copy(out, d.transcript)
	return out
}

// Ask appends the question and the assistant's reply to the transcript.
// The reply is always displayable: the completion adapter maps every
// failure to a localized string.
func (d *Student) Ask(ctx context.Context, q Question) (Message, error) {
	if err := q.Validate(); err != nil {
		return Message{}, err
	}
	if d.svc == nil {
		return Message{}, errors.Wrap(errNoCompletion, "asking assistant")
	}

	now := time.Now().UTC()
	d.append(Message{ID: uuid.New().String(), Author: AuthorUser, Content: q.Content, CreatedAt: now})

	reply := Message{
		ID:        uuid.New().String(),
		Author:    AuthorAssistant,
		Content:   d.svc.Ask(ctx, q.Content),
		CreatedAt: time.Now().UTC(),
	}
	d.append(reply)
	return reply, nil
}

func (d *Student) append(m Message) {
	d.mu.Lock()
	d.transcript = append(d.transcript, m)
	d.mu.Unlock()
}
