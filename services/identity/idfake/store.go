// Package idfake provides an in-memory stand-in for the hosted
// identity store, for tests and local development. It mimics the hosted
// behavior closely enough to exercise the portal: bcrypt-hashed
// credentials, signed access tokens and email-confirmation gating.
package idfake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/services/identity"
)

var signingKey = []byte("idfake-signing-key")

type account struct {
	id           string
	email        string
	passwordHash []byte
	confirmed    bool
	md           identity.Metadata
}

// Store is an in-memory identity.Store.
type Store struct {
	sync.RWMutex
	events identity.Notifier

	accounts  map[string]*account // keyed by email
	profiles  map[string]user.Profile
	materials []material.Material

	// Calls counts remote operations by name, so tests can assert that
	// a guarded action issued no call at all.
	calls map[string]int

	// Errs forces the named operation to fail, for failure-path tests.
	Errs map[string]error
}

var _ identity.Store = (*Store)(nil) // interface compliance check

func New() *Store {
	return &Store{
		accounts: make(map[string]*account),
		profiles: make(map[string]user.Profile),
		calls:    make(map[string]int),
		Errs:     make(map[string]error),
	}
}

func (s *Store) Start(_ context.Context) error {
	s.events.SetAndEmit(identity.EventInitial, s.events.Current())
	return nil
}

func (s *Store) OnAuthChange(fn func(identity.Event, *identity.Session)) (func(), error) {
	return s.events.Subscribe(fn)
}

func (s *Store) CurrentSession() *identity.Session {
	return s.events.Current()
}

func (s *Store) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	s.count("SignIn")
	if err := s.Errs["SignIn"]; err != nil {
		return nil, err
	}

	s.RLock()
	acc, ok := s.accounts[email]
	s.RUnlock()
	if !ok {
		return nil, &identity.AuthError{Status: 400, Message: "Invalid login credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, &identity.AuthError{Status: 400, Message: "Invalid login credentials"}
	}
	if !acc.confirmed {
		return nil, &identity.AuthError{Status: 400, Message: "Email not confirmed"}
	}

	sess, err := s.mintSession(acc)
	if err != nil {
		return nil, err
	}
	s.events.SetAndEmit(identity.EventSignedIn, sess)
	return sess, nil
}

func (s *Store) SignUp(_ context.Context, email, password string, md identity.Metadata) error {
	s.count("SignUp")
	if err := s.Errs["SignUp"]; err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if _, exists := s.accounts[email]; exists {
		return &identity.AuthError{Status: 422, Message: "User already registered"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc := &account{
		id:           uuid.New().String(),
		email:        email,
		passwordHash: hash,
		md:           md,
	}
	s.accounts[email] = acc

	// The hosted store materializes the metadata into a profile row;
	// sign-in stays gated until the email is confirmed.
	s.profiles[acc.id] = user.Profile{
		ID:           acc.id,
		Name:         md.Name,
		Role:         md.Role,
		StudentID:    md.StudentID,
		Major:        md.Major,
		AcademicYear: md.AcademicYear,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

func (s *Store) SignOut(_ context.Context) error {
	s.count("SignOut")
	defer s.events.SetAndEmit(identity.EventSignedOut, nil)
	return s.Errs["SignOut"]
}

func (s *Store) GetProfile(_ context.Context, id string) (user.Profile, error) {
	s.count("GetProfile")
	if err := s.Errs["GetProfile"]; err != nil {
		return user.Profile{}, &identity.ProfileFetchError{Err: err}
	}

	s.RLock()
	defer s.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return user.Profile{}, &identity.ProfileFetchError{Err: errors.New("profile not found: " + id)}
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]user.Profile, error) {
	s.count("ListProfiles")
	if err := s.Errs["ListProfiles"]; err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()
	profiles := make([]user.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func (s *Store) DeleteProfile(_ context.Context, id string) error {
	s.count("DeleteProfile")
	if err := s.Errs["DeleteProfile"]; err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return &identity.DataError{Op: "deleting profile", Status: 404, Message: "profile not found"}
	}
	delete(s.profiles, id)
	return nil
}

func (s *Store) ListMaterials(_ context.Context, teacherID string) ([]material.Material, error) {
	s.count("ListMaterials")
	if err := s.Errs["ListMaterials"]; err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()
	materials := make([]material.Material, 0)
	for _, m := range s.materials {
		if m.TeacherID == teacherID {
			materials = append(materials, m)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].CreatedAt.After(materials[j].CreatedAt) })
	return materials, nil
}

func (s *Store) InsertMaterial(_ context.Context, teacherID, content string) (material.Material, error) {
	s.count("InsertMaterial")
	if err := s.Errs["InsertMaterial"]; err != nil {
		return material.Material{}, err
	}

	s.Lock()
	defer s.Unlock()
	m := material.Material{
		ID:        uuid.New().String(),
		TeacherID: teacherID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.materials = append(s.materials, m)
	return m, nil
}

// Confirm marks an account's email as confirmed, unblocking sign-in.
func (s *Store) Confirm(email string) {
	s.Lock()
	defer s.Unlock()
	if acc, ok := s.accounts[email]; ok {
		acc.confirmed = true
	}
}

// SeedProfile inserts a profile row directly, bypassing registration.
func (s *Store) SeedProfile(p user.Profile) {
	s.Lock()
	defer s.Unlock()
	s.profiles[p.ID] = p
}

// SeedMaterial inserts a material row directly.
func (s *Store) SeedMaterial(m material.Material) {
	s.Lock()
	defer s.Unlock()
	s.materials = append(s.materials, m)
}

// AccountID reports the identity id registered for an email.
func (s *Store) AccountID(email string) string {
	s.RLock()
	defer s.RUnlock()
	if acc, ok := s.accounts[email]; ok {
		return acc.id
	}
	return ""
}

// Calls reports how many times the named remote operation was issued.
func (s *Store) Calls(op string) int {
	s.RLock()
	defer s.RUnlock()
	return s.calls[op]
}

func (s *Store) count(op string) {
	s.Lock()
	s.calls[op]++
	s.Unlock()
}

func (s *Store) mintSession(acc *account) (*identity.Session, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Hour)
	claims := jwt.MapClaims{
		"sub":   acc.id,
		"email": acc.email,
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return nil, errors.Wrap(err, "signing access token")
	}
	return &identity.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp,
		UserID:      acc.id,
		Email:       acc.email,
	}, nil
}
