package acl

import (
	"context"
	"fmt"
	"strings"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// Pseudo-principals usable as ACL entry identifiers.
const (
	// Anyone grants rights to every user, authenticated or not.
	Anyone = "anyone"
	// Authenticated grants rights to every authenticated user.
	Authenticated = "authenticated"
	// GroupPrefix marks an entry identifier as a named group.
	GroupPrefix = "group:"
)

// MembershipFunc answers whether a user belongs to a named group. It is the
// group-membership boundary; the core never enumerates groups itself.
type MembershipFunc func(ctx context.Context, username, group string) (bool, error)

// Resolver computes a user's effective rights over a mailbox. It is
// stateless and safe for concurrent use; callers hand it an ACL snapshot so
// that a resolution never observes a half-applied ACL write.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the union of all rights granted to username by the given
// entries, plus Full when username owns the mailbox. A user with no
// contributing entry gets the empty set, not an error; callers interpret an
// empty set as "mailbox not visible".
func (r *Resolver) Resolve(ctx context.Context, username, owner string, entries []models.ACLEntry, isMember MembershipFunc) (Right, error) {
	if username != "" && username == owner {
		return Full, nil
	}

	var effective Right
	for _, entry := range entries {
		granted, err := ParseRights(entry.Rights)
		if err != nil {
			return None, fmt.Errorf("malformed ACL entry for %q: %w", entry.Identifier, err)
		}

		switch {
		case entry.Identifier == username:
			effective = effective.Union(granted)
		case entry.Identifier == Anyone:
			effective = effective.Union(granted)
		case entry.Identifier == Authenticated && username != "":
			effective = effective.Union(granted)
		case strings.HasPrefix(entry.Identifier, GroupPrefix) && isMember != nil:
			group := strings.TrimPrefix(entry.Identifier, GroupPrefix)
			member, err := isMember(ctx, username, group)
			if err != nil {
				return None, fmt.Errorf("group membership lookup for %q: %w", group, err)
			}
			if member {
				effective = effective.Union(granted)
			}
		}
	}

	return effective, nil
}
