package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/prophecyclub/server/internal/access"
	"github.com/prophecyclub/server/internal/challenge"
	"github.com/prophecyclub/server/internal/config"
	"github.com/prophecyclub/server/internal/db"
	adminapi "github.com/prophecyclub/server/internal/http/api/admin"
	adminhandlers "github.com/prophecyclub/server/internal/http/api/admin/handlers"
	"github.com/prophecyclub/server/internal/http/api/front"
	"github.com/prophecyclub/server/internal/logging"
	"github.com/prophecyclub/server/internal/models"
	"github.com/prophecyclub/server/internal/notify"
	"github.com/prophecyclub/server/internal/security"
	"github.com/prophecyclub/server/internal/store"
)

// challengeSweepInterval is how often expired ceremony state is evicted.
const challengeSweepInterval = time.Minute

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, appCfg config.AppConfig) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the API server.
func RunServer(ctx context.Context, appCfg config.AppConfig) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	users := store.NewUserStore(conn)
	guard := access.NewGuard(users)
	validator := access.NewValidator(users, cfg.Session.Secret)

	webAuthn, errWebAuthn := security.NewWebAuthn(cfg.WebAuthn)
	if errWebAuthn != nil {
		return errWebAuthn
	}

	var (
		challenges challenge.Store
		notifier   notify.Sink = notify.LogSink{}
	)
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		challenges = challenge.NewRedisStore(client, challenge.DefaultTTL)
		notifier = notify.MultiSink{notify.LogSink{}, notify.NewRedisSink(client)}
		log.WithField("addr", cfg.Redis.Addr).Info("using redis challenge store")
	} else {
		challenges = challenge.NewMemoryStore(challenge.DefaultTTL)
	}
	challenge.StartSweeper(ctx, challenges, challengeSweepInterval)

	if errSeed := ensureBootstrapAdmin(ctx, users); errSeed != nil {
		return errSeed
	}

	if cfg.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogMiddleware())

	healthHandler := adminhandlers.NewHealthHandler(conn)
	engine.GET("/healthz", healthHandler.Healthz)

	front.RegisterFrontRoutes(engine, front.Deps{
		Users:      users,
		Guard:      guard,
		Validator:  validator,
		WebAuthn:   webAuthn,
		Challenges: challenges,
		Notifier:   notifier,
		Session:    cfg.Session,
		Production: cfg.Server.Production,
	})
	adminapi.RegisterAdminRoutes(engine, users, guard, validator, notifier)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// ensureBootstrapAdmin seeds the first administrator from the environment.
// Without at least one admin nobody can approve registrations.
func ensureBootstrapAdmin(ctx context.Context, users *store.UserStore) error {
	admins, errCount := users.CountByRole(ctx, models.RoleAdmin)
	if errCount != nil {
		return errCount
	}
	if admins > 0 {
		return nil
	}

	username := security.NormalizeUsername(os.Getenv("BOOTSTRAP_ADMIN_USERNAME"))
	password := strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"))
	if username == "" || password == "" {
		log.Warn("no administrator exists and no bootstrap admin is configured")
		return nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	admin := models.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Status:       models.StatusApproved,
	}
	if errCreate := users.DB().WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return errCreate
	}
	log.WithField("username", username).Info("bootstrap admin created")
	return nil
}

// requestLogMiddleware logs one line per request.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
