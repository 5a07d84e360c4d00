package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/prophecyclub/server/internal/models"
)

// userSummary is the user payload returned by auth endpoints.
func userSummary(user models.User) gin.H {
	return gin.H{
		"id":                    user.ID,
		"username":              user.Username,
		"display_name":          user.DisplayName,
		"role":                  user.Role,
		"status":                user.Status,
		"has_password":          user.HasPassword(),
		"force_password_change": user.ForcePasswordChange,
	}
}
