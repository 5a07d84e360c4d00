package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// UserAdminHandler manages member accounts: approval, roles, deletion and
// password resets. Every mutation passes the lifecycle guard first.
type UserAdminHandler struct {
	users    *store.UserStore
	guard    *access.Guard
	notifier notify.Sink
}

// NewUserAdminHandler constructs a UserAdminHandler.
func NewUserAdminHandler(users *store.UserStore, guard *access.Guard, notifier notify.Sink) *UserAdminHandler {
	return &UserAdminHandler{users: users, guard: guard, notifier: notifier}
}

// adminUserSummary is the user payload returned to admins.
func adminUserSummary(user models.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"role":         user.Role,
		"status":       user.Status,
		"has_password": user.HasPassword(),
		"created_at":   user.CreatedAt,
	}
}

// List returns all users, optionally filtered by a username substring.
func (h *UserAdminHandler) List(c *gin.Context) {
	search := strings.TrimSpace(c.Query("username"))
	users, errList := h.users.List(c.Request.Context(), search)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, user := range users {
		out = append(out, adminUserSummary(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// targetUser resolves the :id path parameter to a user row.
func (h *UserAdminHandler) targetUser(c *gin.Context) (models.User, bool) {
	userID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return models.User{}, false
	}
	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return models.User{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.User{}, false
	}
	return user, true
}

// respondGuardError maps guard violations to 400 and anything else to 500.
func respondGuardError(c *gin.Context, errGuard error) {
	switch {
	case errors.Is(errGuard, access.ErrSelfTarget),
		errors.Is(errGuard, access.ErrLastAdmin):
		c.JSON(http.StatusBadRequest, gin.H{"error": errGuard.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}

// updateStatusRequest defines the request body for status changes.
type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus approves or suspends an account.
func (h *UserAdminHandler) UpdateStatus(c *gin.Context) {
	actor, _ := access.CurrentUser(c)
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	var body updateStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := strings.ToUpper(strings.TrimSpace(body.Status))
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusSuspended:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if errGuard := h.guard.CanChangeStatus(actor.ID, target); errGuard != nil {
		respondGuardError(c, errGuard)
		return
	}
	if errUpdate := h.users.UpdateStatus(c.Request.Context(), target.ID, status); errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	target.Status = status
	h.notifier.UserUpdated(target)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": adminUserSummary(target)})
}

// updateRoleRequest defines the request body for role changes.
type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole promotes or demotes an account. Demoting the last admin is
// rejected.
func (h *UserAdminHandler) UpdateRole(c *gin.Context) {
	actor, _ := access.CurrentUser(c)
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	var body updateRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role := strings.ToUpper(strings.TrimSpace(body.Role))
	switch role {
	case models.RoleUser, models.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	if errGuard := h.guard.CanChangeRole(c.Request.Context(), actor.ID, target, role); errGuard != nil {
		respondGuardError(c, errGuard)
		return
	}
	if errUpdate := h.users.UpdateRole(c.Request.Context(), target.ID, role); errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	target.Role = role
	h.notifier.UserUpdated(target)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": adminUserSummary(target)})
}

// Delete removes an account and its passkeys. The last admin and the acting
// admin themselves are protected.
func (h *UserAdminHandler) Delete(c *gin.Context) {
	actor, _ := access.CurrentUser(c)
	target, ok := h.targetUser(c)
	if !ok {
		return
	}

	if errGuard := h.guard.CanDeleteUser(c.Request.Context(), actor.ID, target); errGuard != nil {
		respondGuardError(c, errGuard)
		return
	}
	if errDelete := h.users.Delete(c.Request.Context(), target.ID); errDelete != nil {
		if errors.Is(errDelete, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.notifier.UserDeleted(target.ID, target.Username)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetPassword generates a one-time password for the target user. The
// plaintext appears exactly once in this response; only the hash is stored
// and the user must change it on first login.
func (h *UserAdminHandler) ResetPassword(c *gin.Context) {
	target, ok := h.targetUser(c)
	if !ok {
		return
	}

	password, errGenerate := security.GenerateRandomPassword()
	if errGenerate != nil {
		log.WithError(errGenerate).Error("password generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate password failed"})
		return
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		log.WithError(errHash).Error("password hash failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errSet := h.users.SetPassword(c.Request.Context(), target.ID, hash, true); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	target.PasswordHash = hash
	target.ForcePasswordChange = true
	h.notifier.UserUpdated(target)
	c.JSON(http.StatusOK, gin.H{"success": true, "password": password})
}
