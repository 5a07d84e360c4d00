package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/http/api/admin/handlers"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/store"
)

// RegisterAdminRoutes registers user-management routes behind the admin tier.
func RegisterAdminRoutes(r *gin.Engine, users *store.UserStore, guard *access.Guard, validator *access.Validator, notifier notify.Sink) {
	if r == nil {
		return
	}

	group := r.Group("/api/admin")
	group.Use(validator.RequireAdmin())

	userHandler := handlers.NewUserAdminHandler(users, guard, notifier)
	group.GET("/users", userHandler.List)
	group.PUT("/users/:id/status", userHandler.UpdateStatus)
	group.PUT("/users/:id/role", userHandler.UpdateRole)
	group.DELETE("/users/:id", userHandler.Delete)
	group.POST("/users/:id/reset-password", userHandler.ResetPassword)
}
