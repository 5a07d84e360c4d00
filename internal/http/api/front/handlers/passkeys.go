package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// PasskeyHandler manages the passkeys of the authenticated user.
type PasskeyHandler struct {
	users      *store.UserStore
	webAuthn   *webauthn.WebAuthn
	challenges challenge.Store
	guard      *access.Guard
}

// NewPasskeyHandler constructs a PasskeyHandler.
func NewPasskeyHandler(users *store.UserStore, webAuthn *webauthn.WebAuthn, challenges challenge.Store, guard *access.Guard) *PasskeyHandler {
	return &PasskeyHandler{users: users, webAuthn: webAuthn, challenges: challenges, guard: guard}
}

// credentialSummary is the passkey payload returned by management endpoints.
func credentialSummary(row models.Credential) gin.H {
	return gin.H{
		"id":           row.ID,
		"display_name": row.DisplayName,
		"device_type":  row.DeviceType,
		"backed_up":    row.BackedUp,
		"created_at":   row.CreatedAt,
		"last_used_at": row.LastUsedAt,
	}
}

// List returns the user's passkeys.
func (h *PasskeyHandler) List(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), user.ID)
	if errCreds != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(credentials))
	for _, row := range credentials {
		out = append(out, credentialSummary(row))
	}
	c.JSON(http.StatusOK, gin.H{"passkeys": out})
}

// AddOptions starts a ceremony that adds a passkey to the current account.
// Existing credentials are excluded so the same authenticator cannot be
// registered twice.
func (h *PasskeyHandler) AddOptions(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), user.ID)
	if errCreds != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	account := security.NewUserAccount(user, credentials)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if len(account.WebAuthnCredentials()) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(account.WebAuthnCredentials()).CredentialDescriptors()))
	}

	creation, session, errBegin := h.webAuthn.BeginRegistration(account, options...)
	if errBegin != nil {
		log.WithError(errBegin).WithField("user_id", user.ID).Error("begin add passkey failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin registration failed"})
		return
	}
	if errStore := h.challenges.Store(c.Request.Context(), challenge.PasskeyKey(user.ID), *session); errStore != nil {
		log.WithError(errStore).Error("passkey challenge store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin registration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": creation})
}

// AddVerify completes an add-passkey ceremony. The optional name travels as a
// query parameter; the body is the raw authenticator response.
func (h *PasskeyHandler) AddVerify(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	key := challenge.PasskeyKey(user.ID)
	session, okChallenge := h.challenges.Get(c.Request.Context(), key)
	if !okChallenge {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration expired"})
		return
	}

	credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), user.ID)
	if errCreds != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	account := security.NewUserAccount(user, credentials)
	credential, errFinish := h.webAuthn.FinishRegistration(account, session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", user.ID).Warn("add passkey verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}
	h.challenges.Clear(c.Request.Context(), key)

	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		name = defaultPasskeyName
	}
	row := security.ModelFromCredential(user.ID, name, credential)
	if errCreate := h.users.CreateCredential(c.Request.Context(), &row); errCreate != nil {
		log.WithError(errCreate).WithField("user_id", user.ID).Error("passkey creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create passkey failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "passkey": credentialSummary(row)})
}

// renamePasskeyRequest defines the request body for renames.
type renamePasskeyRequest struct {
	DisplayName string `json:"display_name"`
}

// Rename updates a passkey's display name.
func (h *PasskeyHandler) Rename(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	credentialID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid passkey id"})
		return
	}
	var body renamePasskeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	displayName := strings.TrimSpace(body.DisplayName)
	if displayName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing display_name"})
		return
	}

	if errRename := h.users.RenameCredential(c.Request.Context(), user.ID, credentialID, displayName); errRename != nil {
		if errors.Is(errRename, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "passkey not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes a passkey, unless it is the account's last remaining
// authentication factor.
func (h *PasskeyHandler) Delete(c *gin.Context) {
	user, ok := access.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	credentialID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid passkey id"})
		return
	}

	if _, errFind := h.users.FindCredential(c.Request.Context(), user.ID, credentialID); errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "passkey not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if errGuard := h.guard.CanRemoveCredential(c.Request.Context(), user); errGuard != nil {
		if errors.Is(errGuard, access.ErrLastCredential) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errGuard.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if errDelete := h.users.DeleteCredential(c.Request.Context(), user.ID, credentialID); errDelete != nil {
		if errors.Is(errDelete, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "passkey not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
