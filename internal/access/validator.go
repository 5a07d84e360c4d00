// Package access decides what a request may do. A session token only
// identifies the subject; every tier re-reads the live user record, so role
// and status changes bite on the very next request without re-login.
package access

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// contextUserKey stores the resolved user in the gin context.
const contextUserKey = "currentUser"

// Validator resolves sessions into live user records and enforces tiers.
type Validator struct {
	users  *store.UserStore
	secret string
}

// NewValidator constructs a Validator.
func NewValidator(users *store.UserStore, sessionSecret string) *Validator {
	return &Validator{users: users, secret: sessionSecret}
}

// CurrentUser returns the user resolved by a Require middleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	return user, ok
}

// resolve decodes the session cookie and loads the authoritative user row.
// Token claims beyond the user ID are ignored on purpose.
func (v *Validator) resolve(c *gin.Context) (models.User, bool) {
	token, ok := security.ReadSessionToken(c.Request)
	if !ok {
		return models.User{}, false
	}
	claims, errParse := security.ParseSessionToken(v.secret, token)
	if errParse != nil {
		return models.User{}, false
	}
	user, errFind := v.users.FindByID(c.Request.Context(), claims.UserID)
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).WithField("user_id", claims.UserID).Error("session user lookup failed")
		}
		return models.User{}, false
	}
	return user, true
}

// RequireUser aborts with 401 unless the request carries a session that
// resolves to an existing user.
func (v *Validator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := v.resolve(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// RequireApproved additionally demands an approved account.
func (v *Validator) RequireApproved() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := v.resolve(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if user.Status != models.StatusApproved {
			abortNotApproved(c, user.Status)
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// RequireAdmin additionally demands the admin role.
func (v *Validator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := v.resolve(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if user.Status != models.StatusApproved {
			abortNotApproved(c, user.Status)
			return
		}
		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// abortNotApproved maps a non-approved status to its 403 wording.
func abortNotApproved(c *gin.Context, status string) {
	if status == models.StatusSuspended {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account not yet approved"})
}
