package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/cache"
	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/database"
	"github.com/GTDGit/gtd_auth/internal/handler"
	"github.com/GTDGit/gtd_auth/internal/metrics"
	"github.com/GTDGit/gtd_auth/internal/middleware"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/repository"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/worker"
)

// main is the application entrypoint for the GTD auth service.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting gtd auth")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.Migrate(db.DB, cfg.DB.MigrationsPath); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis, or fall back to the in-process store
	store, err := cache.New(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if cfg.Redis.Host == "" {
		log.Warn().Msg("REDIS_HOST not set, using in-process cache; rate limits and revocations are per instance")
	} else {
		log.Info().Msg("redis connected successfully")
	}

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 5. Initialize repositories
	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// 6. Initialize notifier: SMTP when configured, otherwise log only,
	// delivered asynchronously by the notification worker
	var sender notify.Notifier = notify.LogNotifier{}
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPNotifier(cfg.SMTP)
	} else {
		log.Warn().Msg("SMTP_HOST not set, emails will be logged instead of sent")
	}
	notificationWorker := worker.NewNotificationWorker(sender, cfg.Notify, m)

	// 7. Initialize services
	limiter := auth.NewRateLimiter(store, auth.RulesFromConfig(cfg.RateLimit))
	deps := service.AuthDeps{
		Users:       userRepo,
		Admins:      adminRepo,
		Audit:       auditRepo,
		Policy:      auth.NewPasswordPolicy(cfg.Password),
		Hasher:      auth.NewArgon2idHasher(cfg.Hasher),
		Tokens:      auth.NewTokenService(cfg.Auth, store),
		Limiter:     limiter,
		Permissions: auth.NewPermissionEngine(),
		Notifier:    notificationWorker,
		Metrics:     m,
		Cache:       store,
		FrontendURL: cfg.Notify.FrontendURL,
	}
	authSvc := service.NewAuthService(deps)
	adminSvc := service.NewAdminService(deps)
	userSvc := service.NewUserService(deps)

	// 8. Initialize handlers
	handlers := &Handlers{
		Health: handler.NewHealthHandler(db.PingContext, store.Ping),
		Auth:   handler.NewAuthHandler(authSvc),
		User:   handler.NewUserHandler(userSvc),
		Admin:  handler.NewAdminHandler(adminSvc),
	}

	// 9. Initialize middleware
	authMw := middleware.NewAuthMiddleware(authSvc, middleware.NewInvalidAuthRateLimiter(limiter))

	// 10. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(m))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	setupRoutes(router, handlers, authMw)

	// 11. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 12. Start workers
	go notificationWorker.Start(ctx)

	// 13. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 14. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 15. Shutdown HTTP server with timeout, then stop workers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Admin  *handler.AdminHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, authMiddleware *middleware.AuthMiddleware) {
	router.GET("/v1/health", handlers.Health.GetHealth)

	// Public auth routes
	authGroup := router.Group("/v1/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/refresh", handlers.Auth.Refresh)
		authGroup.POST("/password/forgot", handlers.Auth.ForgotPassword)
		authGroup.POST("/password/reset", handlers.Auth.ResetPassword)
		authGroup.GET("/verify-email", handlers.Auth.VerifyEmail)

		authGroup.POST("/logout", authMiddleware.Handle(), handlers.Auth.Logout)
		authGroup.POST("/verify-email/resend", authMiddleware.Handle(), handlers.Auth.ResendVerification)
	}

	// User routes (bearer)
	users := router.Group("/v1/users")
	users.Use(authMiddleware.Handle())
	{
		users.GET("", handlers.User.ListUsers)
		users.GET("/me", handlers.User.GetMe)
		users.PUT("/me", handlers.User.UpdateMe)
		users.PUT("/me/password", handlers.User.ChangePassword)
		users.GET("/:id", handlers.User.GetUser)
		users.GET("/:id/activity", handlers.User.GetActivity)
		users.DELETE("/:id", handlers.User.DeactivateUser)
	}

	// Admin routes (bearer; permissions are checked per operation)
	admin := router.Group("/v1/admin")
	admin.Use(authMiddleware.Handle())
	{
		admin.POST("/admins", handlers.Admin.Promote)
		admin.GET("/admins", handlers.Admin.ListAdmins)
		admin.GET("/admins/:userId", handlers.Admin.GetAdmin)
		admin.DELETE("/admins/:userId", handlers.Admin.Demote)
		admin.POST("/admins/:userId/permissions", handlers.Admin.GrantPermission)
		admin.DELETE("/admins/:userId/permissions/:permission", handlers.Admin.RevokePermission)

		admin.GET("/audit-logs", handlers.Admin.ListAuditLogs)
	}
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
