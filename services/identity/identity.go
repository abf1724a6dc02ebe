package identity

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/user"
)

// Event is the kind of a session-change notification.
type Event string

const (
	// EventInitial is delivered exactly once, when the store resolves
	// whether a session exists at startup. Its delivery is authoritative
	// for leaving the initializing state.
	EventInitial   Event = "INITIAL_SESSION"
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

// Session is the client-side view of a server-issued session: the
// opaque access token plus the identity fields carried in its claims.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
}

// Metadata is the profile seed sent along with account creation. The
// store materializes it into a profile row once the email is confirmed.
type Metadata struct {
	Name         string    `json:"name"`
	Role         user.Role `json:"role"`
	StudentID    string    `json:"student_id,omitempty"`
	Major        string    `json:"major,omitempty"`
	AcademicYear string    `json:"academic_year,omitempty"`
}

type (
	// AuthError is a credential or session failure reported by the
	// store. Its message is surfaced to the caller verbatim.
	AuthError struct {
		Status  int
		Message string
	}

	// ProfileFetchError wraps a failed profile lookup. Callers degrade
	// it to "no user" instead of surfacing it.
	ProfileFetchError struct {
		Err error
	}

	// DataError is a row CRUD failure against the profile or material
	// tables.
	DataError struct {
		Op      string
		Status  int
		Message string
	}
)

func (e *AuthError) Error() string { return e.Message }

func (e *ProfileFetchError) Error() string {
	return "fetching profile: " + e.Err.Error()
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

func (e *DataError) Error() string {
	return e.Op + ": " + e.Message
}

// Store is the hosted service of record for credentials, sessions and
// the profile/material tables.
type Store interface {
	// Start resolves the initial session state and delivers the
	// EventInitial notification to the subscriber.
	Start(ctx context.Context) error
	// OnAuthChange registers the session-change subscription. Exactly
	// one subscription may be active per process; the returned func
	// disposes it.
	OnAuthChange(fn func(Event, *Session)) (func(), error)
	// CurrentSession reports the last known session, if any. It never
	// drives state resolution once a subscription exists.
	CurrentSession() *Session

	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, md Metadata) error
	SignOut(ctx context.Context) error

	GetProfile(ctx context.Context, id string) (user.Profile, error)
	ListProfiles(ctx context.Context) ([]user.Profile, error)
	DeleteProfile(ctx context.Context, id string) error

	ListMaterials(ctx context.Context, teacherID string) ([]material.Material, error)
	InsertMaterial(ctx context.Context, teacherID, content string) (material.Material, error)
}

var errAlreadySubscribed = errors.New("an auth-change subscription is already active")

// Notifier owns the current session and the single auth-change
// subscription of a Store implementation. Deliveries are serialized so
// the subscriber observes notifications one at a time, in order.
type Notifier struct {
	mu      sync.Mutex
	emitMu  sync.Mutex
	session *Session
	fn      func(Event, *Session)
}

func (n *Notifier) Subscribe(fn func(Event, *Session)) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fn != nil {
		return nil, errAlreadySubscribed
	}
	n.fn = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.fn = nil
	}, nil
}

func (n *Notifier) Current() *Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session
}

// SetAndEmit updates the session then notifies the subscriber.
func (n *Notifier) SetAndEmit(ev Event, s *Session) {
	n.mu.Lock()
	n.session = s
	fn := n.fn
	n.mu.Unlock()

	if fn == nil {
		return
	}
	n.emitMu.Lock()
	defer n.emitMu.Unlock()
	fn(ev, s)
}
