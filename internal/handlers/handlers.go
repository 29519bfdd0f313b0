// Package handlers exposes the detection and account use cases over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/repository"
	"github.com/example/ai-detector/internal/usecase"
)

// MaxUploadSize is the default upper bound for an uploaded image.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for the form envelope around the file.
const multipartOverhead = 1 << 20

// DetectionService is the detection surface the handlers depend on.
type DetectionService interface {
	Submit(ctx context.Context, upload usecase.Upload, caller *string) (*repository.Detection, error)
	Get(ctx context.Context, id string) (*repository.Detection, error)
	ListHistory(ctx context.Context, ownerID string) ([]repository.Detection, error)
	Delete(ctx context.Context, id, caller string) error
	Stats(ctx context.Context, ownerID string) (*usecase.StatsSummary, error)
}

// AccountService is the account surface the handlers depend on.
type AccountService interface {
	Signup(ctx context.Context, email, password, displayName string) (*repository.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context, userID string) (*repository.User, error)
	UpdateProfile(ctx context.Context, userID, displayName string) (*repository.User, error)
	UpdatePassword(ctx context.Context, userID, current, next string) error
	Withdraw(ctx context.Context, userID string) error
}

type routeConfig struct {
	maxUploadSize  int64
	staticPrefix   string
	staticDir      string
	metricsHandler http.Handler
}

// Option customises RegisterRoutes.
type Option func(*routeConfig)

// WithMaxUploadSize overrides MaxUploadSize.
func WithMaxUploadSize(limit int64) Option {
	return func(cfg *routeConfig) {
		if limit > 0 {
			cfg.maxUploadSize = limit
		}
	}
}

// WithStaticUploads serves the local blob directory under prefix.
func WithStaticUploads(prefix, dir string) Option {
	return func(cfg *routeConfig) {
		cfg.staticPrefix = prefix
		cfg.staticDir = dir
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routeConfig) {
		cfg.metricsHandler = h
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router. gate runs on
// every /api/v1 route and resolves the optional caller identity.
func RegisterRoutes(router *gin.Engine, detections DetectionService, accounts AccountService, gate gin.HandlerFunc, opts ...Option) {
	cfg := routeConfig{maxUploadSize: MaxUploadSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.metricsHandler))
	}
	if cfg.staticDir != "" && cfg.staticPrefix != "" {
		router.Static(cfg.staticPrefix, cfg.staticDir)
	}

	api := router.Group("/api/v1", gate)

	users := &userHandler{accounts: accounts}
	user := api.Group("/user")
	user.POST("/signup", users.signup)
	user.POST("/login", users.login)
	user.GET("/me", users.me)
	user.PATCH("/me", users.updateProfile)
	user.PATCH("/me/password", users.updatePassword)
	user.DELETE("/me", users.withdraw)

	detects := &detectionHandler{detections: detections, maxUploadSize: cfg.maxUploadSize}
	detection := api.Group("/detection")
	detection.POST("/upload", detects.upload)
	detection.GET("/history", detects.history)
	detection.GET("/stats", detects.stats)
	detection.GET("/:id", detects.get)
	detection.DELETE("/history/:id", detects.delete)
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
}
