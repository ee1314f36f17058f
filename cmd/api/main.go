package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/directory"
	"campusattend/internal/faceclient"
	"campusattend/internal/handler"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/marking"
	"campusattend/internal/model"
	"campusattend/internal/report"
	"campusattend/internal/session"
	"campusattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout)

	if !cfg.FaceSkip {
		if err := face.Health(context.Background()); err != nil {
			log.Printf("warning: face service not reachable: %v", err)
		} else {
			log.Println("face service connected")
		}
	}

	userRepo := directory.NewRepository(db.Client)
	dir := directory.NewService(userRepo, redisClient, cfg.CohortCacheTTL)

	sessionRepo := session.NewRepository(db.Client)
	sessions := session.NewService(sessionRepo, dir)

	mark := marking.NewService(sessionRepo, dir, face)
	reports := report.NewService(sessionRepo)

	h := handler.New(cfg, dir, sessions, mark, reports, face)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitBurst, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		redisHealthy := redisClient.Healthy(ctx)
		dbHealthy := db.Client.PingContext(ctx) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	authed.POST("/face/register", h.RegisterFace)
	authed.POST("/face/recognize", h.RecognizeFace)

	authed.POST("/attendance/mark", h.MarkAttendance)
	authed.GET("/attendance/sessions", h.ListSessions)
	authed.GET("/attendance/sessions/:sessionId", h.GetSession)

	authed.PUT("/students/profile", h.UpdateProfile)
	authed.GET("/students/:id/attendance", h.StudentHistory)

	staff := authed.Group("", auth.RequireRole(model.RoleTeacher, model.RoleStaff))
	staff.POST("/attendance/sessions", h.CreateSession)
	staff.PUT("/attendance/sessions/:sessionId/status", h.UpdateSessionStatus)
	staff.POST("/attendance/mark/manual", h.MarkAttendanceManual)
	staff.GET("/teacher/attendance", h.TeacherAttendance)
	staff.GET("/teacher/students/search", h.SearchStudents)
	staff.PUT("/teacher/students/:id", h.UpdateStudent)
	staff.DELETE("/teacher/students/:id", h.DeactivateStudent)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
