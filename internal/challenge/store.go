// Package challenge holds the short-lived, single-use ceremony state shared
// between the options and verify steps of a WebAuthn handshake. A subject key
// maps to at most one in-flight challenge; storing again overwrites. Absence
// and expiry are indistinguishable to callers, who must restart the ceremony
// either way.
package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// DefaultTTL is how long an unconsumed challenge stays valid.
const DefaultTTL = 5 * time.Minute

// Store keeps in-flight ceremony sessions keyed by subject.
type Store interface {
	// Store saves session data under key, replacing any prior entry and
	// resetting the expiry.
	Store(ctx context.Context, key string, data webauthn.SessionData) error
	// Get returns the session data if present and not expired. Expired
	// entries are evicted as a side effect.
	Get(ctx context.Context, key string) (webauthn.SessionData, bool)
	// Clear removes the entry. Clearing a missing key is a no-op.
	Clear(ctx context.Context, key string)
	// Sweep evicts expired entries. Safe on an empty store.
	Sweep(ctx context.Context)
}

// Subject key constructors. Each ceremony kind uses its own namespace so a
// login challenge can never satisfy a registration verify.

// RegistrationKey keys a registration ceremony by its temporary user ID.
func RegistrationKey(tempID string) string { return "reg_" + tempID }

// UserKey keys a named login ceremony by user ID.
func UserKey(userID uint64) string { return fmt.Sprintf("user_%d", userID) }

// PasskeyKey keys an add-passkey ceremony for an existing account.
func PasskeyKey(userID uint64) string { return fmt.Sprintf("passkey_%d", userID) }

// AnonKey returns a fresh opaque key for a discoverable-credential login.
// The caller echoes it back at verify time.
func AnonKey() string { return "anon_" + uuid.NewString() }

// PendingKey marks a just-registered username awaiting approval so the
// client can poll before the account is visible to it.
func PendingKey(username string) string { return "pending_" + username }

// entry stores session data with expiry.
type entry struct {
	data    webauthn.SessionData
	expires time.Time
}

// MemoryStore is the process-local Store used by a single-node deployment.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]entry
}

// NewMemoryStore creates an empty in-memory store. A non-positive ttl falls
// back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, items: make(map[string]entry)}
}

// Store saves session data with a fresh expiry.
func (s *MemoryStore) Store(_ context.Context, key string, data webauthn.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := data.Expires
	if expires.IsZero() {
		expires = time.Now().Add(s.ttl)
	}
	s.items[key] = entry{data: data, expires: expires}
	return nil
}

// Get returns session data if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (webauthn.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return webauthn.SessionData{}, false
	}
	if time.Now().After(item.expires) {
		delete(s.items, key)
		return webauthn.SessionData{}, false
	}
	return item.data, true
}

// Clear removes an entry.
func (s *MemoryStore) Clear(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Sweep evicts every expired entry.
func (s *MemoryStore) Sweep(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, item := range s.items {
		if now.After(item.expires) {
			delete(s.items, key)
		}
	}
}

// StartSweeper runs Sweep on a fixed cadence until ctx is done. Lazy expiry
// on read already keeps the store correct; the sweeper only bounds memory.
func StartSweeper(ctx context.Context, store Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Sweep(ctx)
			}
		}
	}()
}
