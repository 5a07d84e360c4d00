package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/db"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

const testSecret = "handler-test-secret"

// testEnv wires a full front router against an in-memory database.
type testEnv struct {
	users      *store.UserStore
	guard      *access.Guard
	challenges *challenge.MemoryStore
	webAuthn   *webauthn.WebAuthn
	router     *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	users := store.NewUserStore(conn)
	guard := access.NewGuard(users)
	validator := access.NewValidator(users, testSecret)
	challenges := challenge.NewMemoryStore(challenge.DefaultTTL)

	webAuthn, errWebAuthn := security.NewWebAuthn(config.WebAuthnConfig{
		RPID:    "example.com",
		RPName:  "Prophecy Club",
		Origins: []string{"https://example.com"},
	})
	if errWebAuthn != nil {
		t.Fatalf("new webauthn: %v", errWebAuthn)
	}

	sessionCfg := config.SessionConfig{Secret: testSecret, TTL: time.Hour}

	router := gin.New()
	api := router.Group("/api")

	registerHandler := NewRegisterHandler(users, webAuthn, challenges, notify.LogSink{})
	api.POST("/register/options", registerHandler.Options)
	api.POST("/register/verify", registerHandler.Verify)
	api.GET("/register/status", registerHandler.Status)

	authHandler := NewAuthHandler(users, sessionCfg, false)
	api.POST("/login", authHandler.Login)
	api.POST("/logout", authHandler.Logout)

	loginHandler := NewPasskeyLoginHandler(users, webAuthn, challenges, sessionCfg, false)
	api.POST("/login/passkey/options", loginHandler.Options)
	api.POST("/login/passkey/verify", loginHandler.Verify)

	authed := api.Group("")
	authed.Use(validator.RequireUser())

	profileHandler := NewProfileHandler(users, guard)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.SetPassword)
	authed.DELETE("/profile/password", profileHandler.DisablePassword)

	passkeyHandler := NewPasskeyHandler(users, webAuthn, challenges, guard)
	authed.GET("/passkeys", passkeyHandler.List)
	authed.POST("/passkeys/options", passkeyHandler.AddOptions)
	authed.POST("/passkeys/verify", passkeyHandler.AddVerify)
	authed.PUT("/passkeys/:id", passkeyHandler.Rename)
	authed.DELETE("/passkeys/:id", passkeyHandler.Delete)

	return &testEnv{
		users:      users,
		guard:      guard,
		challenges: challenges,
		webAuthn:   webAuthn,
		router:     router,
	}
}

func (e *testEnv) seedUser(t *testing.T, username, role, status, password string) models.User {
	t.Helper()
	user := models.User{Username: username, DisplayName: username, Role: role, Status: status}
	if password != "" {
		hash, errHash := security.HashPassword(password)
		if errHash != nil {
			t.Fatalf("hash password: %v", errHash)
		}
		user.PasswordHash = hash
	}
	if errCreate := e.users.DB().Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user %s: %v", username, errCreate)
	}
	return user
}

func (e *testEnv) seedCredential(t *testing.T, userID uint64, handle string) models.Credential {
	t.Helper()
	credential := models.Credential{
		CredentialID: []byte(handle),
		PublicKey:    []byte("public-key"),
		DisplayName:  "Passkey",
		UserID:       userID,
	}
	if errCreate := e.users.DB().Create(&credential).Error; errCreate != nil {
		t.Fatalf("seed credential %s: %v", handle, errCreate)
	}
	return credential
}

func (e *testEnv) do(t *testing.T, method, path, body string, session *models.User) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, path, nil)
	}
	if session != nil {
		token, errToken := security.GenerateSessionToken(testSecret, session.ID, session.Username, session.Role, time.Hour)
		if errToken != nil {
			t.Fatalf("generate token: %v", errToken)
		}
		request.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode body %q: %v", recorder.Body.String(), errDecode)
	}
	return payload
}

func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == security.SessionCookieName {
			return cookie
		}
	}
	return nil
}
