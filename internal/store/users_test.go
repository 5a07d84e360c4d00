package store

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prophecyclub/server/internal/db"
	"github.com/prophecyclub/server/internal/models"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewUserStore(conn)
}

func seedUser(t *testing.T, s *UserStore, username, role, status string) models.User {
	t.Helper()
	user := models.User{Username: username, DisplayName: username, Role: role, Status: status}
	if errCreate := s.DB().Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user %s: %v", username, errCreate)
	}
	return user
}

func seedCredential(t *testing.T, s *UserStore, userID uint64, handle string) models.Credential {
	t.Helper()
	credential := models.Credential{
		CredentialID: []byte(handle),
		PublicKey:    []byte("public-key"),
		DisplayName:  "Passkey",
		UserID:       userID,
	}
	if errCreate := s.CreateCredential(context.Background(), &credential); errCreate != nil {
		t.Fatalf("seed credential %s: %v", handle, errCreate)
	}
	return credential
}

func TestFindByUsernameAndTaken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)

	user, errFind := s.FindByUsername(ctx, "alice")
	if errFind != nil {
		t.Fatalf("find alice: %v", errFind)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %s", user.Username)
	}

	if _, errFind := s.FindByUsername(ctx, "bob"); !errors.Is(errFind, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", errFind)
	}

	taken, errTaken := s.UsernameTaken(ctx, "alice")
	if errTaken != nil || !taken {
		t.Fatalf("expected alice taken, got %v (%v)", taken, errTaken)
	}
	taken, errTaken = s.UsernameTaken(ctx, "bob")
	if errTaken != nil || taken {
		t.Fatalf("expected bob free, got %v (%v)", taken, errTaken)
	}
}

func TestCreateWithCredential(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user := models.User{Username: "alice", DisplayName: "Alice", Role: models.RoleUser, Status: models.StatusPending}
	credential := models.Credential{CredentialID: []byte("cred-1"), PublicKey: []byte("key"), DisplayName: "Passkey"}
	if errCreate := s.CreateWithCredential(ctx, &user, &credential); errCreate != nil {
		t.Fatalf("create with credential: %v", errCreate)
	}
	if user.ID == 0 {
		t.Fatal("expected user id to be assigned")
	}
	if credential.UserID != user.ID {
		t.Fatalf("expected credential bound to user %d, got %d", user.ID, credential.UserID)
	}

	count, errCount := s.CountCredentials(ctx, user.ID)
	if errCount != nil || count != 1 {
		t.Fatalf("expected 1 credential, got %d (%v)", count, errCount)
	}
}

func TestCreateWithCredentialDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)

	duplicate := models.User{Username: "alice", DisplayName: "Alice II", Role: models.RoleUser, Status: models.StatusPending}
	credential := models.Credential{CredentialID: []byte("cred-2"), PublicKey: []byte("key"), DisplayName: "Passkey"}
	errCreate := s.CreateWithCredential(ctx, &duplicate, &credential)
	if !errors.Is(errCreate, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected duplicated key error, got %v", errCreate)
	}

	var count int64
	if errCount := s.DB().Model(&models.Credential{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count credentials: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("failed create must roll back the credential, found %d", count)
	}
}

func TestListWithSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)
	seedUser(t, s, "alina", models.RoleUser, models.StatusApproved)
	seedUser(t, s, "bob", models.RoleUser, models.StatusApproved)

	all, errAll := s.List(ctx, "")
	if errAll != nil || len(all) != 3 {
		t.Fatalf("expected 3 users, got %d (%v)", len(all), errAll)
	}

	matched, errMatch := s.List(ctx, "ALI")
	if errMatch != nil {
		t.Fatalf("search: %v", errMatch)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches for ALI, got %d", len(matched))
	}
}

func TestCountByRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "root", models.RoleAdmin, models.StatusApproved)
	seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)
	seedUser(t, s, "bob", models.RoleUser, models.StatusPending)

	admins, errAdmins := s.CountByRole(ctx, models.RoleAdmin)
	if errAdmins != nil || admins != 1 {
		t.Fatalf("expected 1 admin, got %d (%v)", admins, errAdmins)
	}
	members, errMembers := s.CountByRole(ctx, models.RoleUser)
	if errMembers != nil || members != 2 {
		t.Fatalf("expected 2 users, got %d (%v)", members, errMembers)
	}
}

func TestPasswordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)

	if errSet := s.SetPassword(ctx, user.ID, "hash-value", true); errSet != nil {
		t.Fatalf("set password: %v", errSet)
	}
	got, _ := s.FindByID(ctx, user.ID)
	if got.PasswordHash != "hash-value" || !got.ForcePasswordChange {
		t.Fatalf("expected forced hash, got %q force=%v", got.PasswordHash, got.ForcePasswordChange)
	}

	if errClear := s.ClearPassword(ctx, user.ID); errClear != nil {
		t.Fatalf("clear password: %v", errClear)
	}
	got, _ = s.FindByID(ctx, user.ID)
	if got.HasPassword() || got.ForcePasswordChange {
		t.Fatalf("expected password disabled, got %q force=%v", got.PasswordHash, got.ForcePasswordChange)
	}

	if errSet := s.SetPassword(ctx, 9999, "hash", false); !errors.Is(errSet, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for missing user, got %v", errSet)
	}
}

func TestDeleteRemovesCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)
	seedCredential(t, s, user.ID, "cred-1")
	seedCredential(t, s, user.ID, "cred-2")

	if errDelete := s.Delete(ctx, user.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, errFind := s.FindByID(ctx, user.ID); !errors.Is(errFind, gorm.ErrRecordNotFound) {
		t.Fatalf("expected user gone, got %v", errFind)
	}
	count, errCount := s.CountCredentials(ctx, user.ID)
	if errCount != nil || count != 0 {
		t.Fatalf("expected credentials gone, got %d (%v)", count, errCount)
	}

	if errDelete := s.Delete(ctx, user.ID); !errors.Is(errDelete, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found on second delete, got %v", errDelete)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)
	credential := seedCredential(t, s, user.ID, "cred-1")

	byHandle, errHandle := s.FindCredentialByHandle(ctx, []byte("cred-1"))
	if errHandle != nil || byHandle.ID != credential.ID {
		t.Fatalf("find by handle: %v", errHandle)
	}

	if errRename := s.RenameCredential(ctx, user.ID, credential.ID, "Laptop"); errRename != nil {
		t.Fatalf("rename: %v", errRename)
	}
	renamed, _ := s.FindCredential(ctx, user.ID, credential.ID)
	if renamed.DisplayName != "Laptop" {
		t.Fatalf("expected Laptop, got %s", renamed.DisplayName)
	}

	// A different user must not be able to rename or delete it.
	other := seedUser(t, s, "bob", models.RoleUser, models.StatusApproved)
	if errRename := s.RenameCredential(ctx, other.ID, credential.ID, "Stolen"); !errors.Is(errRename, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for foreign rename, got %v", errRename)
	}
	if errDelete := s.DeleteCredential(ctx, other.ID, credential.ID); !errors.Is(errDelete, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for foreign delete, got %v", errDelete)
	}

	if errDelete := s.DeleteCredential(ctx, user.ID, credential.ID); errDelete != nil {
		t.Fatalf("delete credential: %v", errDelete)
	}
	if _, errFind := s.FindCredential(ctx, user.ID, credential.ID); !errors.Is(errFind, gorm.ErrRecordNotFound) {
		t.Fatalf("expected credential gone, got %v", errFind)
	}
}

func TestAdvanceSignCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "alice", models.RoleUser, models.StatusApproved)
	credential := seedCredential(t, s, user.ID, "cred-1")

	if errAdvance := s.AdvanceSignCount(ctx, credential.ID, 17); errAdvance != nil {
		t.Fatalf("advance: %v", errAdvance)
	}
	got, errFind := s.FindCredential(ctx, user.ID, credential.ID)
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if got.SignCount != 17 {
		t.Fatalf("expected sign count 17, got %d", got.SignCount)
	}
	if got.LastUsedAt == nil {
		t.Fatal("expected last used timestamp")
	}
}
