package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// defaultPasskeyName labels a passkey when the client does not name it.
const defaultPasskeyName = "Passkey"

// RegisterHandler runs the passkey registration ceremony for new accounts.
type RegisterHandler struct {
	users      *store.UserStore
	webAuthn   *webauthn.WebAuthn
	challenges challenge.Store
	notifier   notify.Sink
}

// NewRegisterHandler constructs a RegisterHandler.
func NewRegisterHandler(users *store.UserStore, webAuthn *webauthn.WebAuthn, challenges challenge.Store, notifier notify.Sink) *RegisterHandler {
	return &RegisterHandler{users: users, webAuthn: webAuthn, challenges: challenges, notifier: notifier}
}

// registerOptionsRequest defines the request body for registration options.
type registerOptionsRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Options starts a registration ceremony. The challenge is bound to a
// temporary user ID; no account exists until verify succeeds.
func (h *RegisterHandler) Options(c *gin.Context) {
	var body registerOptionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := security.NormalizeUsername(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	displayName := strings.TrimSpace(body.DisplayName)
	if displayName == "" {
		displayName = username
	}

	taken, errTaken := h.users.UsernameTaken(c.Request.Context(), username)
	if errTaken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}

	tempUserID := uuid.NewString()
	account := security.NewRegistrationAccount(tempUserID, username, displayName, nil)
	creation, session, errBegin := h.webAuthn.BeginRegistration(account,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	)
	if errBegin != nil {
		log.WithError(errBegin).Error("begin registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin registration failed"})
		return
	}

	if errStore := h.challenges.Store(c.Request.Context(), challenge.RegistrationKey(tempUserID), *session); errStore != nil {
		log.WithError(errStore).Error("registration challenge store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin registration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"options":      creation,
		"temp_user_id": tempUserID,
		"username":     username,
		"display_name": displayName,
	})
}

// Verify completes a registration ceremony. The request body is the raw
// authenticator response; identifiers travel as query parameters so the body
// stays parseable by the protocol layer.
func (h *RegisterHandler) Verify(c *gin.Context) {
	tempUserID := strings.TrimSpace(c.Query("temp_user_id"))
	username := security.NormalizeUsername(c.Query("username"))
	displayName := strings.TrimSpace(c.Query("display_name"))
	if tempUserID == "" || username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing temp_user_id or username"})
		return
	}
	if displayName == "" {
		displayName = username
	}

	key := challenge.RegistrationKey(tempUserID)
	session, ok := h.challenges.Get(c.Request.Context(), key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration expired"})
		return
	}

	account := security.NewRegistrationAccount(tempUserID, username, displayName, nil)
	credential, errFinish := h.webAuthn.FinishRegistration(account, session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("username", username).Warn("registration verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}
	// Single use: the challenge is gone even if user creation fails below.
	h.challenges.Clear(c.Request.Context(), key)

	h.createAccount(c, username, displayName, credential)
}

// createAccount persists a verified registration. The duplicate check runs a
// second time here because the ceremony holds no lock across the round-trip;
// the unique index is the backstop when two verifies race past it.
func (h *RegisterHandler) createAccount(c *gin.Context, username, displayName string, credential *webauthn.Credential) {
	taken, errTaken := h.users.UsernameTaken(c.Request.Context(), username)
	if errTaken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}

	user := models.User{
		Username:    username,
		DisplayName: displayName,
		Role:        models.RoleUser,
		Status:      models.StatusPending,
	}
	row := security.ModelFromCredential(0, defaultPasskeyName, credential)
	if errCreate := h.users.CreateWithCredential(c.Request.Context(), &user, &row); errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		log.WithError(errCreate).WithField("username", username).Error("user creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	h.notifier.UserCreated(user)
	// Pending marker lets the client poll approval state right after the
	// redirect, before any session exists.
	_ = h.challenges.Store(c.Request.Context(), challenge.PendingKey(username), webauthn.SessionData{Challenge: "pending"})

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userSummary(user)})
}

// Status reports whether a freshly registered username is still awaiting
// approval.
func (h *RegisterHandler) Status(c *gin.Context) {
	username := security.NormalizeUsername(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if _, ok := h.challenges.Get(c.Request.Context(), challenge.PendingKey(username)); ok {
		c.JSON(http.StatusOK, gin.H{"pending": true})
		return
	}
	user, errFind := h.users.FindByUsername(c.Request.Context(), username)
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": user.Status == models.StatusPending})
}
