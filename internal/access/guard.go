package access

import (
	"context"
	"errors"

	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/store"
)

// Guard violations. Handlers surface these as 400 with the error text.
var (
	// ErrLastCredential rejects deleting the only passkey of a
	// password-less account.
	ErrLastCredential = errors.New("cannot delete last passkey without password set")
	// ErrNoCredentials rejects disabling password login when no passkey
	// would remain.
	ErrNoCredentials = errors.New("cannot disable password login without a registered passkey")
	// ErrLastAdmin rejects demoting or deleting the only administrator.
	ErrLastAdmin = errors.New("cannot remove the last administrator")
	// ErrSelfTarget rejects admins suspending, re-roling or deleting
	// themselves through the user-management path.
	ErrSelfTarget = errors.New("administrators cannot modify their own account")
)

// Guard enforces the cross-factor lifecycle invariants: no account loses its
// last authentication factor, and the system never loses its last admin.
type Guard struct {
	users *store.UserStore
}

// NewGuard constructs a Guard.
func NewGuard(users *store.UserStore) *Guard {
	return &Guard{users: users}
}

// CanRemoveCredential reports whether a passkey of the user may be deleted.
// The only forbidden case is a sole passkey on an account without a password.
func (g *Guard) CanRemoveCredential(ctx context.Context, user models.User) error {
	if user.HasPassword() {
		return nil
	}
	count, errCount := g.users.CountCredentials(ctx, user.ID)
	if errCount != nil {
		return errCount
	}
	if count <= 1 {
		return ErrLastCredential
	}
	return nil
}

// CanDisablePassword reports whether password login may be switched off.
func (g *Guard) CanDisablePassword(ctx context.Context, user models.User) error {
	count, errCount := g.users.CountCredentials(ctx, user.ID)
	if errCount != nil {
		return errCount
	}
	if count == 0 {
		return ErrNoCredentials
	}
	return nil
}

// CanChangeRole reports whether an acting admin may move the target to
// newRole. Self-targeting is rejected outright; demoting the last admin is
// rejected regardless of who asks.
func (g *Guard) CanChangeRole(ctx context.Context, actorID uint64, target models.User, newRole string) error {
	if actorID == target.ID {
		return ErrSelfTarget
	}
	if target.IsAdmin() && newRole != models.RoleAdmin {
		admins, errCount := g.users.CountByRole(ctx, models.RoleAdmin)
		if errCount != nil {
			return errCount
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	return nil
}

// CanChangeStatus reports whether an acting admin may change the target's
// status.
func (g *Guard) CanChangeStatus(actorID uint64, target models.User) error {
	if actorID == target.ID {
		return ErrSelfTarget
	}
	return nil
}

// CanDeleteUser reports whether an acting admin may delete the target.
func (g *Guard) CanDeleteUser(ctx context.Context, actorID uint64, target models.User) error {
	if actorID == target.ID {
		return ErrSelfTarget
	}
	if target.IsAdmin() {
		admins, errCount := g.users.CountByRole(ctx, models.RoleAdmin)
		if errCount != nil {
			return errCount
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	return nil
}
