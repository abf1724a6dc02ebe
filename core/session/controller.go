// Package session owns the authentication/authorization state machine:
// it resolves the store's session notifications into a role-bearing
// user and exposes the login/register/logout operations.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/services/identity"
)

// State is the resolution state of the current identity.
type State int

const (
	// StateInitializing holds until the first session-change
	// notification arrives; no routes may render before it exits.
	StateInitializing State = iota
	// StateUnauthenticated means no valid session exists.
	StateUnauthenticated
	// StateAuthenticatedNoProfile means a session exists but its
	// profile lookup failed or has not resolved. It reads as "no user".
	StateAuthenticatedNoProfile
	// StateAuthenticated means a fully resolved, role-bearing user.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticatedNoProfile:
		return "authenticated-no-profile"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

const profileFetchTimeout = 10 * time.Second

// Controller resolves the identity store's session notifications into
// local auth state. Lifecycle: New -> Init -> [resolved] -> Close.
// Exactly one auth-change subscription is held for its lifetime.
type Controller struct {
	store  identity.Store
	logger core.Logger

	mu          sync.Mutex
	state       State
	usr         *user.User
	unsubscribe func()
}

func NewController(store identity.Store, logger core.Logger) *Controller {
	return &Controller{
		store:  store,
		logger: logger,
		state:  StateInitializing,
	}
}

// Init subscribes to session-change notifications and starts the store.
// The first notification delivered — session or none — is what exits
// StateInitializing; the explicit CurrentSession check never writes
// resolved state, so the listener stays the single writer.
func (c *Controller) Init(ctx context.Context) error {
	unsub, err := c.store.OnAuthChange(c.handleAuthChange)
	if err != nil {
		return errors.Wrap(err, "subscribing to auth changes")
	}
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()

	_ = c.store.CurrentSession()

	return errors.Wrap(c.store.Start(ctx), "starting identity store")
}

// Close disposes the auth-change subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User reports the resolved user, if any. A user is only ever exposed
// with a valid role.
func (c *Controller) User() (user.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usr == nil {
		return user.User{}, false
	}
	return *c.usr, true
}

// Login delegates to the identity store. AuthError messages pass
// through verbatim for display. Local user state is NOT mutated here:
// the session-change notification drives the transition, which avoids
// racing a manual post-login fetch against the listener.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	email = core.CleanString(email, true /* lower */)
	_, err := c.store.SignIn(ctx, email, password)
	return err
}

// Register validates the role-conditional input before any remote call
// is made, then delegates account creation plus the profile seed to the
// store in one call. The user is not logged in: email confirmation
// gates session issuance.
func (c *Controller) Register(ctx context.Context, reg user.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	md := identity.Metadata{
		Name: reg.Name,
		Role: reg.Role,
	}
	if reg.Role == user.RoleStudent {
		md.StudentID = reg.StudentID
		md.Major = reg.Major
		md.AcademicYear = reg.AcademicYear
	}
	return c.store.SignUp(ctx, reg.Email, reg.Password, md)
}

// Logout requests session invalidation and clears the local user
// immediately, whatever the call's outcome.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.usr = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()

	if err := c.store.SignOut(ctx); err != nil {
		c.logger.Warn("session: sign-out call failed", errors.Wrap(err, "signing out"))
	}
}

// handleAuthChange is the single writer of resolved state. Every
// session-bearing notification performs exactly one profile read; no
// profile is ever cached across transitions.
func (c *Controller) handleAuthChange(ev identity.Event, sess *identity.Session) {
	if sess == nil {
		c.mu.Lock()
		c.usr = nil
		c.state = StateUnauthenticated
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.usr = nil
	c.state = StateAuthenticatedNoProfile
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
	defer cancel()

	profile, err := c.store.GetProfile(ctx, sess.UserID)
	if err != nil {
		// Fail open: an unreadable profile reads as "no user". This
		// leaves an orphaned, login-capable session signed out on the
		// client only — a known weak point of the design.
		c.logger.Warn("session: profile fetch failed, treating as signed out", errors.Wrap(err, "fetching profile"))
		return
	}
	if !profile.Role.Valid() {
		c.logger.Warn("session: profile carries unknown role " + profile.Role.String())
		return
	}

	usr := user.ResolveUser(sess.UserID, sess.Email, profile)
	c.mu.Lock()
	c.usr = &usr
	c.state = StateAuthenticated
	c.mu.Unlock()
}
