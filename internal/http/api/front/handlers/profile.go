package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// ProfileHandler serves the authenticated user's own account, including the
// password factor.
type ProfileHandler struct {
	users *store.UserStore
	guard *access.Guard
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(users *store.UserStore, guard *access.Guard) *ProfileHandler {
	return &ProfileHandler{users: users, guard: guard}
}

// Get returns the current user's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userSummary(user)})
}

// setPasswordRequest defines the request body for password changes.
type setPasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// SetPassword sets or changes the password factor. Changing an existing
// password requires the old one, except right after an admin reset.
func (h *ProfileHandler) SetPassword(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var body setPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	newPassword := strings.TrimSpace(body.NewPassword)
	if newPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing new_password"})
		return
	}

	if user.HasPassword() && !user.ForcePasswordChange {
		if !security.CheckPassword(user.PasswordHash, strings.TrimSpace(body.OldPassword)) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
			return
		}
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		log.WithError(errHash).Error("password hash failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errSet := h.users.SetPassword(c.Request.Context(), user.ID, hash, false); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DisablePassword switches password login off, unless no passkey would
// remain as a factor.
func (h *ProfileHandler) DisablePassword(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	if !user.HasPassword() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password login not enabled for this account"})
		return
	}
	if errGuard := h.guard.CanDisablePassword(c.Request.Context(), user); errGuard != nil {
		if errors.Is(errGuard, access.ErrNoCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errGuard.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errClear := h.users.ClearPassword(c.Request.Context(), user.ID); errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
