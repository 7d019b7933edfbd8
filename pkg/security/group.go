package security

import (
	"errors"
	"fmt"
	"os/user"
	"slices"

	"github.com/cuemby/netpanel/pkg/types"
)

// ErrForbidden is returned when an authenticated user lacks access
var ErrForbidden = errors.New("user does not belong to the access group")

// Authorizer decides whether an authenticated user may use the panel
type Authorizer interface {
	Authorize(u *types.User) error
}

// GroupAuthorizer admits members of one system group, identified by GID.
// With an empty GID every authenticated user is admitted.
type GroupAuthorizer struct {
	gid string

	lookupGroup func(gid string) error
	groupIDs    func(username string) ([]string, error)
}

// NewGroupAuthorizer creates an authorizer for gid
func NewGroupAuthorizer(gid string) *GroupAuthorizer {
	return &GroupAuthorizer{
		gid: gid,
		lookupGroup: func(gid string) error {
			_, err := user.LookupGroupId(gid)
			return err
		},
		groupIDs: func(username string) ([]string, error) {
			u, err := user.Lookup(username)
			if err != nil {
				return nil, err
			}
			return u.GroupIds()
		},
	}
}

// GID returns the configured access group
func (a *GroupAuthorizer) GID() string {
	return a.gid
}

// Authorize returns ErrForbidden for users outside the group. A group that
// does not exist on the host is a configuration error, not a denial.
func (a *GroupAuthorizer) Authorize(u *types.User) error {
	if a.gid == "" {
		return nil
	}
	if u == nil {
		return ErrForbidden
	}
	if err := a.lookupGroup(a.gid); err != nil {
		return fmt.Errorf("access group gid=%s: %w", a.gid, err)
	}

	ids, err := a.groupIDs(u.Username)
	var unknown user.UnknownUserError
	if errors.As(err, &unknown) {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("failed to resolve groups of %s: %w", u.Username, err)
	}
	if !slices.Contains(ids, a.gid) {
		return ErrForbidden
	}
	return nil
}
