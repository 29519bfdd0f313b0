package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ai-detector/internal/auth"
	"github.com/example/ai-detector/internal/blobstore"
	"github.com/example/ai-detector/internal/config"
	"github.com/example/ai-detector/internal/handlers"
	"github.com/example/ai-detector/internal/inference"
	"github.com/example/ai-detector/internal/logging"
	"github.com/example/ai-detector/internal/repository"
	"github.com/example/ai-detector/internal/usecase"
)

const lruCacheSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	if err := repository.AutoMigrate(ctx, db); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	users := repository.NewUserRepository(db, logger)
	detections := repository.NewDetectionRepository(db, logger)

	cache := initCache(ctx, cfg, logger)
	store, staticDir := initBlobStore(ctx, cfg, logger)

	client, closeClient := initInference(ctx, cfg, logger)
	defer closeClient()

	signingKey, err := auth.NewSigningKey(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("invalid signing key", zap.Error(err))
	}
	tokens := auth.NewTokenService(signingKey,
		auth.WithTTL(cfg.TokenTTL),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAudience(cfg.JWTAudience),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	detector := usecase.NewDetectionUseCase(detections, users, store, client, logger,
		usecase.WithGuestDetection(cfg.AllowGuestDetection),
		usecase.WithInferenceTimeout(cfg.InferenceTimeout),
		usecase.WithResultCache(cache, cfg.CacheTTL),
		usecase.WithMetrics(usecase.NewMetrics(registry)),
	)
	accounts := usecase.NewUserUseCase(users, detections, store, tokens, logger,
		usecase.WithUserResultCache(cache),
	)

	r := newRouter(cfg, logger, registry, detector, accounts, tokens, staticDir)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("detector API listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newRouter assembles the gin engine with recovery, request logging,
// HTTP metrics and the auth gate in front of the API routes.
func newRouter(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry, detector handlers.DetectionService, accounts handlers.AccountService, tokens auth.Validator, staticDir string) *gin.Engine {
	httpMetrics := handlers.NewHTTPMetrics(registry)

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger), httpMetrics.Middleware())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	routeOpts := []handlers.Option{
		handlers.WithMaxUploadSize(cfg.MaxUploadBytes),
		handlers.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}
	if staticDir != "" {
		routeOpts = append(routeOpts, handlers.WithStaticUploads(cfg.UploadURLPrefix, staticDir))
	}
	handlers.RegisterRoutes(r, detector, accounts, auth.Gate(tokens), routeOpts...)
	return r
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	db, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	return db
}

// initCache prefers Redis and falls back to an in-process LRU when no
// address is configured.
func initCache(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) usecase.Cache {
	if cfg.RedisAddr == "" {
		zapLogger.Info("using in-process result cache")
		return usecase.NewLRUCache(lruCacheSize, cfg.CacheTTL)
	}

	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(redisCtx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return usecase.NewRedisCache(client)
}

// initBlobStore also returns the directory to serve statically, which is
// only set for the local driver.
func initBlobStore(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (blobstore.Store, string) {
	switch cfg.BlobDriver {
	case "s3":
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			zapLogger.Fatal("failed to configure s3 blob store", zap.Error(err))
		}
		return store, ""
	case "minio":
		store, err := blobstore.NewMinioStore(ctx, blobstore.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			zapLogger.Fatal("failed to configure minio blob store", zap.Error(err))
		}
		return store, ""
	default:
		store, err := blobstore.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
		if err != nil {
			zapLogger.Fatal("failed to prepare upload directory", zap.Error(err))
		}
		return store, store.Dir()
	}
}

func initInference(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (inference.Client, func()) {
	if cfg.InferenceTransport == "grpc" {
		client, conn, err := inference.DialGRPC(ctx, cfg.InferenceGRPCAddr, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed to connect to inference service", zap.Error(err))
		}
		return client, func() { _ = conn.Close() }
	}
	return inference.NewHTTPClient(cfg.InferenceURL, inference.Mode(cfg.InferenceMode), cfg.InferenceTimeout, zapLogger), func() {}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
