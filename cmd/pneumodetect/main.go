package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pneumodetect/internal/config"
	"pneumodetect/internal/database"
	"pneumodetect/internal/gateway"
	httpapi "pneumodetect/internal/http"
	"pneumodetect/internal/logger"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/service"
	"pneumodetect/internal/storage"
	"pneumodetect/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "pneumodetect")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)

	// Repositories: Postgres when available, in-memory fallback for
	// development without a database.
	var (
		db           *sql.DB
		usersRepo    repository.UsersRepository
		analysesRepo repository.AnalysesRepository
		notifsRepo   repository.NotificationsRepository
		auditRepo    repository.AuditRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for pneumodetect")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		usersRepo = repository.NewPostgresUsersRepository(db)
		analysesRepo = repository.NewPostgresAnalysesRepository(db)
		notifsRepo = repository.NewPostgresNotificationsRepository(db)
		auditRepo = repository.NewPostgresAuditRepository(db)
	} else {
		memUsers := repository.NewMemoryUsersRepository()
		memNotifs := repository.NewMemoryNotificationsRepository()
		usersRepo = memUsers
		analysesRepo = repository.NewMemoryAnalysesRepository(memUsers, memNotifs)
		notifsRepo = memNotifs
		auditRepo = repository.NewMemoryAuditRepository()
	}

	// Object storage: S3 when a bucket is configured, local files otherwise.
	var objects storage.ObjectStore
	if cfg.Storage.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(context.Background(), cfg.Storage.S3Bucket, cfg.Storage.S3Region)
		if err != nil {
			log.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
		objects = s3Store
		log.Info("Using S3 object storage", zap.String("bucket", cfg.Storage.S3Bucket))
	} else {
		localStore, err := storage.NewLocalStore(cfg.Storage.LocalRoot)
		if err != nil {
			log.Fatal("Failed to initialize local storage", zap.Error(err))
		}
		objects = localStore
		log.Info("Using local object storage", zap.String("root", cfg.Storage.LocalRoot))
	}

	classifier := gateway.NewHTTPClassifier(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, cfg.Gateway.Retries, log)

	sessions := service.NewSessionManager(kv, cfg.Session.TTL)
	authService := service.NewAuthService(usersRepo, sessions, kv, auditRepo, cfg, log)
	analysisService := service.NewAnalysisService(analysesRepo, classifier, objects, auditRepo, cfg, log)
	reviewService := service.NewReviewService(analysesRepo, auditRepo, cfg, log)
	notificationService := service.NewNotificationService(notifsRepo, auditRepo, cfg, log)
	adminService := service.NewAdminService(usersRepo, analysesRepo, auditRepo, cfg, log)

	mw := httpapi.NewMiddleware(sessions, auditRepo, cfg, log)
	router := httpapi.NewRouter(log)
	router.RegisterAuthRoutes(mw, httpapi.NewAuthHandler(authService, mw, log))
	router.RegisterAnalysisRoutes(mw, httpapi.NewAnalysisHandler(analysisService, cfg, log))
	router.RegisterNotificationRoutes(mw, httpapi.NewNotificationHandler(notificationService, log))
	router.RegisterDoctorRoutes(mw, httpapi.NewDoctorHandler(analysisService, reviewService, log))
	router.RegisterAdminRoutes(mw, httpapi.NewAdminHandler(adminService, cfg, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server exited", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	_ = database.Close(db)
}
