// Package store is the persistence boundary for user and credential records.
// Handlers and middleware talk to UserStore instead of raw gorm so the auth
// core stays independent of the query layer that backs the rest of the game.
package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/db"
	"github.com/prophecyclub/server/internal/models"
)

// UserStore reads and writes user and credential records.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore constructs a UserStore.
func NewUserStore(conn *gorm.DB) *UserStore {
	return &UserStore{db: conn}
}

// DB exposes the underlying connection for wiring.
func (s *UserStore) DB() *gorm.DB { return s.db }

// FindByID returns a user by primary key.
func (s *UserStore) FindByID(ctx context.Context, id uint64) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	return user, err
}

// FindByUsername returns a user by normalized username.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return user, err
}

// UsernameTaken reports whether a normalized username is already registered.
func (s *UserStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

// List returns users ordered by creation, optionally filtered by a username
// substring.
func (s *UserStore) List(ctx context.Context, search string) ([]models.User, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at ASC")
	if search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(s.db, "username"), pattern)
	}
	var users []models.User
	err := query.Find(&users).Error
	return users, err
}

// CountByRole counts users holding a role. The last-admin invariant is
// checked against this count.
func (s *UserStore) CountByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", role).
		Count(&count).Error
	return count, err
}

// CreateWithCredential atomically creates a user together with its first
// passkey. Either both rows land or neither does.
func (s *UserStore) CreateWithCredential(ctx context.Context, user *models.User, credential *models.Credential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(user).Error; errCreate != nil {
			return errCreate
		}
		credential.UserID = user.ID
		return tx.Create(credential).Error
	})
}

// UpdateStatus sets a user's status.
func (s *UserStore) UpdateStatus(ctx context.Context, userID uint64, status string) error {
	return s.updateUser(ctx, userID, map[string]any{"status": status})
}

// UpdateRole sets a user's role.
func (s *UserStore) UpdateRole(ctx context.Context, userID uint64, role string) error {
	return s.updateUser(ctx, userID, map[string]any{"role": role})
}

// SetPassword stores a new password hash. forceChange marks the password as
// one-time, set by admin resets.
func (s *UserStore) SetPassword(ctx context.Context, userID uint64, hash string, forceChange bool) error {
	return s.updateUser(ctx, userID, map[string]any{
		"password_hash":         hash,
		"force_password_change": forceChange,
	})
}

// ClearPassword disables password login. The lifecycle guard must have been
// consulted before calling this.
func (s *UserStore) ClearPassword(ctx context.Context, userID uint64) error {
	return s.updateUser(ctx, userID, map[string]any{
		"password_hash":         "",
		"force_password_change": false,
	})
}

// Delete removes a user and all of its credentials.
func (s *UserStore) Delete(ctx context.Context, userID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreds := tx.Where("user_id = ?", userID).Delete(&models.Credential{}).Error; errCreds != nil {
			return errCreds
		}
		result := tx.Delete(&models.User{}, userID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// updateUser applies column updates and bumps updated_at.
func (s *UserStore) updateUser(ctx context.Context, userID uint64, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CredentialsByUser returns all passkeys owned by a user.
func (s *UserStore) CredentialsByUser(ctx context.Context, userID uint64) ([]models.Credential, error) {
	var credentials []models.Credential
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&credentials).Error
	return credentials, err
}

// CountCredentials counts a user's passkeys.
func (s *UserStore) CountCredentials(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// FindCredential returns a passkey by owner and row ID.
func (s *UserStore) FindCredential(ctx context.Context, userID, credentialID uint64) (models.Credential, error) {
	var credential models.Credential
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", credentialID, userID).
		First(&credential).Error
	return credential, err
}

// FindCredentialByHandle returns a passkey by its authenticator-generated ID,
// used to resolve discoverable-credential logins.
func (s *UserStore) FindCredentialByHandle(ctx context.Context, handle []byte) (models.Credential, error) {
	var credential models.Credential
	err := s.db.WithContext(ctx).
		Where("credential_id = ?", handle).
		First(&credential).Error
	return credential, err
}

// CreateCredential adds a passkey to an existing user.
func (s *UserStore) CreateCredential(ctx context.Context, credential *models.Credential) error {
	return s.db.WithContext(ctx).Create(credential).Error
}

// RenameCredential updates a passkey's display name.
func (s *UserStore) RenameCredential(ctx context.Context, userID, credentialID uint64, displayName string) error {
	result := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ? AND user_id = ?", credentialID, userID).
		Updates(map[string]any{
			"display_name": displayName,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCredential removes a passkey. The lifecycle guard must have been
// consulted before calling this.
func (s *UserStore) DeleteCredential(ctx context.Context, userID, credentialID uint64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", credentialID, userID).
		Delete(&models.Credential{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdvanceSignCount persists the authenticator counter after a successful
// login and stamps the last-used time.
func (s *UserStore) AdvanceSignCount(ctx context.Context, credentialID uint64, signCount uint32) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", credentialID).
		Updates(map[string]any{
			"sign_count":   signCount,
			"last_used_at": now,
			"updated_at":   now,
		}).Error
}
