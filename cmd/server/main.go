package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"catalogpanel/internal/app"
	"catalogpanel/internal/config"
	"catalogpanel/internal/ratelimit"
	"catalogpanel/internal/server"
	"catalogpanel/internal/stafftoken"
	"catalogpanel/internal/util"
	"catalogpanel/pkg/cache"
	"catalogpanel/pkg/storage"
	"catalogpanel/pkg/store"
	"catalogpanel/pkg/workbook"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cacheTTL, _ := config.ParseDuration(cfg.ProductCacheTTL)
	previewTimeout, _ := config.ParseDuration(cfg.PreviewTimeout)
	jwtLeeway, _ := config.ParseDuration(cfg.JWTLeeway)

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	productStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to init product store: %v", err)
	}
	defer closeStore()

	images, sheets, err := openObjectStores(cfg)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect redis: %v", err)
	}
	cancel()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy config: %v", err)
	}

	verifier, err := stafftoken.NewVerifier(ctx, stafftoken.Config{
		JWKSURL:      cfg.AuthJWKSURL,
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		AllowedRoles: cfg.AllowedRoles,
		Leeway:       jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	var uploadLimiter server.RateLimiter
	if cfg.UploadRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, cfg.RedisPrefix+":ratelimit:upload", cfg.UploadRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init upload limiter: %v", err)
		}
		uploadLimiter = limiter
	}

	var previewClient *http.Client
	if previewTimeout > 0 {
		previewClient = &http.Client{Timeout: previewTimeout}
	}

	appCore, err := app.New(app.Config{
		Store:             productStore,
		Images:            images,
		Sheets:            sheets,
		Cache:             cache.NewProductListCache(redisClient, cfg.RedisPrefix, cacheTTL),
		Previewer:         workbook.NewIngester(previewClient, cfg.MaxPreviewBytes),
		PublicBaseURL:     cfg.PublicBaseURL,
		OrphanPolicy:      app.OrphanPolicy(cfg.OrphanPolicy),
		UploadConcurrency: cfg.UploadConcurrency,
		SheetExtensions:   cfg.SheetExtensions,
		PreviewHosts:      cfg.PreviewHosts,
		SheetListLimit:    cfg.SheetListLimit,
		MaxImageBytes:     cfg.MaxImageBytes,
		MaxSheetBytes:     cfg.MaxSheetBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	srvCfg := server.Config{
		App:            appCore,
		TokenVerifier:  verifier,
		UploadLimiter:  uploadLimiter,
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: uploadRequestLimit(cfg),
	}
	if cfg.StorageDriver == config.StorageDriverLocal {
		srvCfg.FilesDir = cfg.StoragePath
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr, "store", cfg.StoreDriver, "storage", cfg.StorageDriver, "orphan_policy", cfg.OrphanPolicy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func openStore(cfg config.FileConfig) (store.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory product store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return gormStore, func() { _ = gormStore.Close() }, nil
}

func openObjectStores(cfg config.FileConfig) (storage.ObjectStore, storage.ObjectStore, error) {
	if cfg.StorageDriver == config.StorageDriverLocal {
		images, err := storage.NewFileStore(cfg.StoragePath, cfg.ImagesBucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		sheets, err := storage.NewFileStore(cfg.StoragePath, cfg.SheetsBucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return images, sheets, nil
	}
	minioCfg := func(bucket string) storage.MinioConfig {
		return storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        bucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		}
	}
	images, err := storage.NewMinioStore(minioCfg(cfg.ImagesBucket))
	if err != nil {
		return nil, nil, err
	}
	sheets, err := storage.NewMinioStore(minioCfg(cfg.SheetsBucket))
	if err != nil {
		return nil, nil, err
	}
	return images, sheets, nil
}

// uploadRequestLimit caps a whole multipart request: several images or one sheet plus form overhead.
func uploadRequestLimit(cfg config.FileConfig) int64 {
	limit := cfg.MaxImageBytes * 10
	if cfg.MaxSheetBytes > limit {
		limit = cfg.MaxSheetBytes
	}
	return limit + 1<<20
}
