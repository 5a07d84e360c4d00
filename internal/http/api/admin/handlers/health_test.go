package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	router := gin.New()
	router.GET("/healthz", NewHealthHandler(conn).Healthz)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	sqlDB, _ := conn.DB()
	_ = sqlDB.Close()

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with closed db, got %d", recorder.Code)
	}
}
