package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// PasskeyLoginHandler runs the passkey authentication ceremony, both the
// named flow and the discoverable-credential flow.
type PasskeyLoginHandler struct {
	users      *store.UserStore
	webAuthn   *webauthn.WebAuthn
	challenges challenge.Store
	sessionCfg config.SessionConfig
	production bool
}

// NewPasskeyLoginHandler constructs a PasskeyLoginHandler.
func NewPasskeyLoginHandler(users *store.UserStore, webAuthn *webauthn.WebAuthn, challenges challenge.Store, sessionCfg config.SessionConfig, production bool) *PasskeyLoginHandler {
	return &PasskeyLoginHandler{users: users, webAuthn: webAuthn, challenges: challenges, sessionCfg: sessionCfg, production: production}
}

// loginOptionsRequest defines the request body for login options. Username is
// optional; without it the client gets a discoverable-credential assertion.
type loginOptionsRequest struct {
	Username string `json:"username"`
}

// Options starts a login ceremony and returns the assertion options plus the
// opaque challenge key the client must echo back at verify time.
func (h *PasskeyLoginHandler) Options(c *gin.Context) {
	var body loginOptionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := security.NormalizeUsername(body.Username)
	if username == "" {
		h.discoverableOptions(c)
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
	if user.Status != models.StatusApproved {
		respondNotApproved(c, user.Status)
		return
	}
	credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), user.ID)
	if errCreds != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if len(credentials) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no passkey registered for this user"})
		return
	}

	account := security.NewUserAccount(user, credentials)
	assertion, session, errBegin := h.webAuthn.BeginLogin(account,
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if errBegin != nil {
		log.WithError(errBegin).WithField("username", username).Error("begin passkey login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin login failed"})
		return
	}

	key := challenge.UserKey(user.ID)
	if errStore := h.challenges.Store(c.Request.Context(), key, *session); errStore != nil {
		log.WithError(errStore).Error("login challenge store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": assertion, "challenge_key": key})
}

// discoverableOptions issues an assertion that allows any resident credential.
func (h *PasskeyLoginHandler) discoverableOptions(c *gin.Context) {
	assertion, session, errBegin := h.webAuthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if errBegin != nil {
		log.WithError(errBegin).Error("begin discoverable login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin login failed"})
		return
	}

	key := challenge.AnonKey()
	if errStore := h.challenges.Store(c.Request.Context(), key, *session); errStore != nil {
		log.WithError(errStore).Error("login challenge store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": assertion, "challenge_key": key})
}

// Verify completes a login ceremony. The body is the raw authenticator
// response; the challenge key travels as a query parameter.
func (h *PasskeyLoginHandler) Verify(c *gin.Context) {
	key := strings.TrimSpace(c.Query("challenge_key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing challenge_key"})
		return
	}

	session, ok := h.challenges.Get(c.Request.Context(), key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login expired"})
		return
	}

	var (
		user       models.User
		credential *webauthn.Credential
		errFinish  error
	)
	if strings.HasPrefix(key, "anon_") {
		credential, user, errFinish = h.finishDiscoverable(c, session)
	} else {
		credential, user, errFinish = h.finishNamed(c, session)
	}
	if errFinish != nil {
		log.WithError(errFinish).WithField("challenge_key", key).Warn("passkey login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed"})
		return
	}

	h.completeLogin(c, key, user, credential)
}

// completeLogin applies the post-assertion checks, persists the signature
// counter and issues the session cookie. A rejected login leaves the
// challenge and the stored counter untouched.
func (h *PasskeyLoginHandler) completeLogin(c *gin.Context, key string, user models.User, credential *webauthn.Credential) {
	if user.Status != models.StatusApproved {
		respondNotApproved(c, user.Status)
		return
	}
	// A counter at or below the stored value means a cloned authenticator.
	if credential.Authenticator.CloneWarning {
		log.WithField("username", user.Username).Warn("passkey counter regression, possible clone")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed"})
		return
	}

	h.challenges.Clear(c.Request.Context(), key)

	row, errRow := h.users.FindCredentialByHandle(c.Request.Context(), credential.ID)
	if errRow != nil {
		log.WithError(errRow).WithField("username", user.Username).Warn("credential lookup after login failed, counter not persisted")
	} else if errAdvance := h.users.AdvanceSignCount(c.Request.Context(), row.ID, credential.Authenticator.SignCount); errAdvance != nil {
		log.WithError(errAdvance).WithField("credential_id", row.ID).Warn("sign count update failed")
	}

	token, errToken := security.GenerateSessionToken(h.sessionCfg.Secret, user.ID, user.Username, user.Role, h.sessionCfg.TTL)
	if errToken != nil {
		log.WithError(errToken).WithField("user_id", user.ID).Error("session token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	security.SetSessionCookie(c.Writer, token, h.sessionCfg.TTL, h.production)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userSummary(user)})
}

// finishNamed validates the assertion for the user the session was bound to.
func (h *PasskeyLoginHandler) finishNamed(c *gin.Context, session webauthn.SessionData) (*webauthn.Credential, models.User, error) {
	userID, ok := security.UserIDFromHandle(session.UserID)
	if !ok {
		return nil, models.User{}, fmt.Errorf("malformed session user handle")
	}
	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		return nil, models.User{}, errFind
	}
	credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), user.ID)
	if errCreds != nil {
		return nil, models.User{}, errCreds
	}
	account := security.NewUserAccount(user, credentials)
	credential, errLogin := h.webAuthn.FinishLogin(account, session, c.Request)
	if errLogin != nil {
		return nil, models.User{}, errLogin
	}
	return credential, user, nil
}

// finishDiscoverable validates the assertion, resolving the account from the
// user handle the authenticator reports.
func (h *PasskeyLoginHandler) finishDiscoverable(c *gin.Context, session webauthn.SessionData) (*webauthn.Credential, models.User, error) {
	var user models.User
	handler := func(_, userHandle []byte) (webauthn.User, error) {
		userID, ok := security.UserIDFromHandle(userHandle)
		if !ok {
			return nil, fmt.Errorf("malformed user handle")
		}
		found, errFind := h.users.FindByID(c.Request.Context(), userID)
		if errFind != nil {
			return nil, errFind
		}
		credentials, errCreds := h.users.CredentialsByUser(c.Request.Context(), found.ID)
		if errCreds != nil {
			return nil, errCreds
		}
		user = found
		return security.NewUserAccount(found, credentials), nil
	}
	credential, errLogin := h.webAuthn.FinishDiscoverableLogin(handler, session, c.Request)
	if errLogin != nil {
		return nil, models.User{}, errLogin
	}
	return credential, user, nil
}
