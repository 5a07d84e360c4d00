package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

const testSecret = "validator-test-secret"

func newTestRouter(t *testing.T, s *store.UserStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator := NewValidator(s, testSecret)

	router := gin.New()
	router.GET("/user", validator.RequireUser(), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"username": user.Username})
	})
	router.GET("/approved", validator.RequireApproved(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/admin", validator.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func requestWithSession(t *testing.T, path string, user models.User) *http.Request {
	t.Helper()
	token, errToken := security.GenerateSessionToken(testSecret, user.ID, user.Username, user.Role, time.Hour)
	if errToken != nil {
		t.Fatalf("generate token: %v", errToken)
	}
	request := httptest.NewRequest(http.MethodGet, path, nil)
	request.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	return request
}

func TestRequireUserWithoutCookie(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRequireUserMalformedToken(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	request := httptest.NewRequest(http.MethodGet, "/user", nil)
	request.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: "garbage"})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", recorder.Code)
	}
}

func TestRequireUserDeletedAccount(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	ghost := models.User{ID: 9999, Username: "ghost", Role: models.RoleUser}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/user", ghost))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account, got %d", recorder.Code)
	}
}

func TestRequireUserResolvesLiveRecord(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)
	user := seedUser(t, s, "alice", models.RoleUser, models.StatusPending, "")

	// A PENDING user still passes the session tier.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/user", user))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRequireApprovedTiers(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	pending := seedUser(t, s, "pending", models.RoleUser, models.StatusPending, "")
	suspended := seedUser(t, s, "suspended", models.RoleUser, models.StatusSuspended, "")
	approved := seedUser(t, s, "approved", models.RoleUser, models.StatusApproved, "")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/approved", pending))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pending, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/approved", suspended))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for suspended, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/approved", approved))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for approved, got %d", recorder.Code)
	}
}

func TestRequireAdminTier(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	member := seedUser(t, s, "member", models.RoleUser, models.StatusApproved, "")
	admin := seedUser(t, s, "root", models.RoleAdmin, models.StatusApproved, "")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/admin", member))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, requestWithSession(t, "/admin", admin))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", recorder.Code)
	}
}

func TestRoleChangeBitesOnNextRequest(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)
	user := seedUser(t, s, "alice", models.RoleAdmin, models.StatusApproved, "")

	// Token claims an admin role, but the row was demoted after issuance.
	request := requestWithSession(t, "/admin", user)
	if errDemote := s.UpdateRole(request.Context(), user.ID, models.RoleUser); errDemote != nil {
		t.Fatalf("demote: %v", errDemote)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected stale token to be denied, got %d", recorder.Code)
	}
}
