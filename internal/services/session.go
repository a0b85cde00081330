// Package services implements the mailbox and message managers that make up
// the core's session-scoped API. Protocol adapters call into this package
// and translate results into their own wire formats.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// Session ties an authenticated user to a correlation identifier. It is
// created at login, owned by the protocol adapter that created it, never
// persisted, and dies with the logical connection.
type Session struct {
	// ID is the correlation identifier stamped on events and mapper calls.
	ID string

	// User is the authenticated principal, immutable once issued.
	User models.User

	// CreatedAt is when the session was opened.
	CreatedAt time.Time
}

// NewSession creates a session for an authenticated user.
func NewSession(user models.User) *Session {
	return &Session{
		ID:        uuid.New().String(),
		User:      user,
		CreatedAt: time.Now().UTC(),
	}
}

// Username returns the session user's identity key.
func (s *Session) Username() string {
	return s.User.Username
}

// Locales returns the user's ordered locale preferences, most preferred
// first. May be empty.
func (s *Session) Locales() []string {
	return s.User.Locales
}

// Authenticator is the credential boundary. The core treats credentials as
// opaque and never stores them.
type Authenticator interface {
	// Authenticate validates the credentials and returns the user, or an
	// error when the authenticator rejects them.
	Authenticate(ctx context.Context, username, credential string) (models.User, error)
}

// GroupLookup is the group-membership boundary consulted during ACL
// resolution.
type GroupLookup interface {
	// IsMember reports whether the user belongs to the named group.
	IsMember(ctx context.Context, username, group string) (bool, error)
}

// StaticAuthenticator authenticates against a fixed username/credential
// table. Intended for tests and single-node deployments.
type StaticAuthenticator struct {
	mu          sync.RWMutex
	credentials map[string]string
	locales     map[string][]string
}

// NewStaticAuthenticator creates an authenticator over a credential table.
func NewStaticAuthenticator(credentials map[string]string) *StaticAuthenticator {
	table := make(map[string]string, len(credentials))
	for user, cred := range credentials {
		table[user] = cred
	}
	return &StaticAuthenticator{
		credentials: table,
		locales:     make(map[string][]string),
	}
}

// AddUser registers or replaces a user's credential.
func (a *StaticAuthenticator) AddUser(username, credential string) {
	a.mu.Lock()
	a.credentials[username] = credential
	a.mu.Unlock()
}

// SetLocales records a user's locale preferences, most preferred first.
func (a *StaticAuthenticator) SetLocales(username string, locales ...string) {
	a.mu.Lock()
	a.locales[username] = append([]string(nil), locales...)
	a.mu.Unlock()
}

// Authenticate validates the credentials against the table. The error is
// identical for unknown users and wrong credentials.
func (a *StaticAuthenticator) Authenticate(ctx context.Context, username, credential string) (models.User, error) {
	a.mu.RLock()
	stored, ok := a.credentials[username]
	locales := a.locales[username]
	a.mu.RUnlock()

	if !ok || stored != credential {
		return models.User{}, coreerrors.ErrAuthenticationFailed
	}
	return models.User{
		Username: username,
		Locales:  append([]string(nil), locales...),
	}, nil
}

// StaticGroups answers membership from a fixed group table.
type StaticGroups struct {
	mu     sync.RWMutex
	groups map[string]map[string]bool
}

// NewStaticGroups creates a lookup over a group -> members table.
func NewStaticGroups() *StaticGroups {
	return &StaticGroups{groups: make(map[string]map[string]bool)}
}

// AddMember adds a user to a group.
func (g *StaticGroups) AddMember(group, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.groups[group] == nil {
		g.groups[group] = make(map[string]bool)
	}
	g.groups[group][username] = true
}

// IsMember reports whether the user belongs to the named group.
func (g *StaticGroups) IsMember(ctx context.Context, username, group string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groups[group][username], nil
}
