package front

import (
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/http/api/front/handlers"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/store"
)

// Deps bundles the collaborators the front routes need.
type Deps struct {
	Users      *store.UserStore
	Guard      *access.Guard
	Validator  *access.Validator
	WebAuthn   *webauthn.WebAuthn
	Challenges challenge.Store
	Notifier   notify.Sink
	Session    config.SessionConfig
	Production bool
}

// RegisterFrontRoutes registers public and authenticated member routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	front := r.Group("/api")

	registerHandler := handlers.NewRegisterHandler(deps.Users, deps.WebAuthn, deps.Challenges, deps.Notifier)
	front.POST("/register/options", registerHandler.Options)
	front.POST("/register/verify", registerHandler.Verify)
	front.GET("/register/status", registerHandler.Status)

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Session, deps.Production)
	front.POST("/login", authHandler.Login)
	front.POST("/logout", authHandler.Logout)

	loginHandler := handlers.NewPasskeyLoginHandler(deps.Users, deps.WebAuthn, deps.Challenges, deps.Session, deps.Production)
	front.POST("/login/passkey/options", loginHandler.Options)
	front.POST("/login/passkey/verify", loginHandler.Verify)

	// Credential management only needs an authenticated session; a PENDING
	// user may still manage the factors they registered with.
	authed := front.Group("")
	authed.Use(deps.Validator.RequireUser())

	profileHandler := handlers.NewProfileHandler(deps.Users, deps.Guard)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.SetPassword)
	authed.DELETE("/profile/password", profileHandler.DisablePassword)

	passkeyHandler := handlers.NewPasskeyHandler(deps.Users, deps.WebAuthn, deps.Challenges, deps.Guard)
	authed.GET("/passkeys", passkeyHandler.List)
	authed.POST("/passkeys/options", passkeyHandler.AddOptions)
	authed.POST("/passkeys/verify", passkeyHandler.AddVerify)
	authed.PUT("/passkeys/:id", passkeyHandler.Rename)
	authed.DELETE("/passkeys/:id", passkeyHandler.Delete)
}
