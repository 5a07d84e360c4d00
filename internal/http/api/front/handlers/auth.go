package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// AuthHandler handles password login, logout and session introspection.
type AuthHandler struct {
	users      *store.UserStore
	sessionCfg config.SessionConfig
	production bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *store.UserStore, sessionCfg config.SessionConfig, production bool) *AuthHandler {
	return &AuthHandler{users: users, sessionCfg: sessionCfg, production: production}
}

// loginRequest defines the request body for password login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user with username and password. Unknown users and
// wrong passwords share one message so credential existence never leaks.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := security.NormalizeUsername(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	user, errFind := h.users.FindByUsername(c.Request.Context(), username)
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.HasPassword() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password login not enabled for this account"})
		return
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if user.Status != models.StatusApproved {
		respondNotApproved(c, user.Status)
		return
	}

	h.issueSession(c, user)
}

// Logout clears the session cookie. Sessions are stateless, so there is
// nothing to revoke server-side.
func (h *AuthHandler) Logout(c *gin.Context) {
	security.ClearSessionCookie(c.Writer, h.production)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// issueSession signs a session token, sets the cookie and responds with the
// user summary.
func (h *AuthHandler) issueSession(c *gin.Context, user models.User) {
	token, errToken := security.GenerateSessionToken(h.sessionCfg.Secret, user.ID, user.Username, user.Role, h.sessionCfg.TTL)
	if errToken != nil {
		log.WithError(errToken).WithField("user_id", user.ID).Error("session token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	security.SetSessionCookie(c.Writer, token, h.sessionCfg.TTL, h.production)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userSummary(user)})
}

// respondNotApproved maps a non-approved status to its 403 wording.
func respondNotApproved(c *gin.Context, status string) {
	if status == models.StatusSuspended {
		c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "account not yet approved"})
}
