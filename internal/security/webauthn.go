package security

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/datatypes"

	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/models"
)

// NewWebAuthn builds the relying party from config. When no RP ID is
// configured it is derived from the first parseable origin.
func NewWebAuthn(cfg config.WebAuthnConfig) (*webauthn.WebAuthn, error) {
	rpID := strings.TrimSpace(cfg.RPID)
	if rpID == "" {
		if derived := deriveRPIDFromOrigins(cfg.Origins); derived != "" {
			rpID = derived
		}
	}
	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     cfg.Origins,
	})
}

// deriveRPIDFromOrigins extracts an RP ID from the configured origins.
func deriveRPIDFromOrigins(origins []string) string {
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Host == "" {
			continue
		}
		return parsed.Hostname()
	}
	return ""
}

// WebAuthnAccount adapts an account to the webauthn.User interface. During
// registration the account does not exist yet, so the ID is caller-supplied.
type WebAuthnAccount struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

// WebAuthnID returns the account handle.
func (a WebAuthnAccount) WebAuthnID() []byte { return a.id }

// WebAuthnName returns the login name.
func (a WebAuthnAccount) WebAuthnName() string { return a.name }

// WebAuthnDisplayName returns the presentation name.
func (a WebAuthnAccount) WebAuthnDisplayName() string {
	if a.displayName != "" {
		return a.displayName
	}
	return a.name
}

// WebAuthnCredentials returns the registered credentials.
func (a WebAuthnAccount) WebAuthnCredentials() []webauthn.Credential { return a.credentials }

// NewRegistrationAccount builds an adapter for a not-yet-created user keyed by
// a temporary handle. Exclusions prevent re-registering an authenticator the
// requesting identity already owns.
func NewRegistrationAccount(tempID, username, displayName string, exclusions []models.Credential) WebAuthnAccount {
	return WebAuthnAccount{
		id:          []byte(tempID),
		name:        username,
		displayName: displayName,
		credentials: CredentialsFromModels(exclusions),
	}
}

// NewUserAccount builds an adapter for an existing user and its passkeys.
func NewUserAccount(user models.User, credentials []models.Credential) WebAuthnAccount {
	return WebAuthnAccount{
		id:          userHandle(user.ID),
		name:        user.Username,
		displayName: user.DisplayName,
		credentials: CredentialsFromModels(credentials),
	}
}

// userHandle encodes a user ID as a stable WebAuthn user handle.
func userHandle(id uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(id)
		id >>= 8
	}
	return buf
}

// UserIDFromHandle decodes a WebAuthn user handle back into a user ID.
func UserIDFromHandle(handle []byte) (uint64, bool) {
	if len(handle) != 8 {
		return 0, false
	}
	var id uint64
	for _, b := range handle {
		id = id<<8 | uint64(b)
	}
	return id, true
}

// CredentialFromModel converts a stored credential row into the library type.
func CredentialFromModel(row models.Credential) webauthn.Credential {
	cred := webauthn.Credential{
		ID:        row.CredentialID,
		PublicKey: row.PublicKey,
		Flags: webauthn.CredentialFlags{
			BackupEligible: row.BackedUp,
			BackupState:    row.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: row.SignCount,
		},
	}
	var transports []string
	if len(row.Transports) > 0 {
		if errUnmarshal := json.Unmarshal(row.Transports, &transports); errUnmarshal == nil {
			for _, t := range transports {
				cred.Transport = append(cred.Transport, protocol.AuthenticatorTransport(t))
			}
		}
	}
	return cred
}

// CredentialsFromModels converts stored credential rows into library types.
func CredentialsFromModels(rows []models.Credential) []webauthn.Credential {
	if len(rows) == 0 {
		return nil
	}
	out := make([]webauthn.Credential, 0, len(rows))
	for _, row := range rows {
		out = append(out, CredentialFromModel(row))
	}
	return out
}

// ModelFromCredential converts a verified library credential into a row for
// the owning user.
func ModelFromCredential(userID uint64, displayName string, cred *webauthn.Credential) models.Credential {
	row := models.Credential{
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		DeviceType:   string(cred.Authenticator.Attachment),
		BackedUp:     cred.Flags.BackupState,
		DisplayName:  displayName,
		UserID:       userID,
	}
	if len(cred.Transport) > 0 {
		transports := make([]string, 0, len(cred.Transport))
		for _, t := range cred.Transport {
			transports = append(transports, string(t))
		}
		if raw, errMarshal := json.Marshal(transports); errMarshal == nil {
			row.Transports = datatypes.JSON(raw)
		}
	}
	return row
}
