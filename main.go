package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RigelNana/media-service/config"
	"github.com/RigelNana/media-service/database"
	"github.com/RigelNana/media-service/events"
	"github.com/RigelNana/media-service/middleware"
	"github.com/RigelNana/media-service/pkg/metrics"
	"github.com/RigelNana/media-service/repository"
	"github.com/RigelNana/media-service/router"
	"github.com/RigelNana/media-service/service"
	"github.com/RigelNana/media-service/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// openRepository connects the configured metadata store. The returned func
// releases the connection.
func openRepository(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.MediaRepository, func(context.Context), error) {
	switch cfg.Database.Driver {
	case "mongo":
		db, err := database.ConnectMongo(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoMediaRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return repo, func(ctx context.Context) { _ = db.Client().Disconnect(ctx) }, nil

	case "memory":
		logger.Warn("using in-memory metadata store, records are lost on restart")
		return repository.NewMemoryMediaRepository(), func(context.Context) {}, nil

	default:
		db, err := database.ConnectPostgres(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if err := metrics.RegisterDBStats(sqlDB, cfg.Database.DBName); err != nil {
			logger.WithError(err).Warn("db stats collector not registered")
		}
		return repository.NewMediaRepository(db), func(context.Context) { _ = sqlDB.Close() }, nil
	}
}

// openStore returns the asset store and, for the local backend, the
// directory to serve under /uploads.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Store, string, error) {
	if cfg.Storage.Backend == "minio" {
		store, err := storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.BucketName,
			Region:          cfg.MinIO.Region,
			PublicURL:       cfg.MinIO.PublicURL,
			Normalize:       cfg.MinIO.Normalize,
			Image: storage.NormalizeOptions{
				MaxWidth:  cfg.MinIO.MaxWidth,
				MaxHeight: cfg.MinIO.MaxHeight,
				Quality:   cfg.MinIO.JPEGQuality,
			},
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Server.BaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Root(), nil
}

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger := newLogger(cfg)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()

	repo, closeRepo, err := openRepository(startCtx, cfg, logger)
	if err != nil {
		logger.Fatalf("初始化数据库失败: %v", err)
	}
	logger.WithField("driver", cfg.Database.Driver).Info("数据库连接成功")

	store, uploadDir, err := openStore(startCtx, cfg, logger)
	if err != nil {
		logger.Fatalf("初始化存储失败: %v", err)
	}
	logger.WithField("backend", store.Provider()).Info("asset store ready")

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Brokers != "" {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.WithField("topic", cfg.Kafka.Topic).Info("publishing media events to kafka")
	}

	auth, err := middleware.NewAuthenticator(cfg)
	if err != nil {
		logger.Fatalf("初始化认证失败: %v", err)
	}

	uploader := service.NewUploader(store, cfg.Storage.MaxUploadBytes, cfg.Storage.AllowedTypes)
	mediaService := service.NewMediaService(repo, uploader, publisher, logger)

	var scheduler *service.CleanupScheduler
	if cfg.Cleanup.Schedule != "" {
		scheduler, err = service.NewCleanupScheduler(cfg.Cleanup.Schedule, mediaService, logger)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		scheduler.Start()
		logger.WithField("schedule", cfg.Cleanup.Schedule).Info("cleanup scheduler started")
	}

	// 启动 Prometheus metrics 服务器
	var metricsServer *http.Server
	if cfg.Metrics.Port != "" {
		metricsServer = metrics.StartMetricsServer(cfg.Metrics.Port, logger)
		logger.Infof("Prometheus metrics server started on :%s", cfg.Metrics.Port)
	}

	r := router.Setup(router.Deps{
		Config:    cfg,
		Service:   mediaService,
		Uploader:  uploader,
		Auth:      auth,
		Logger:    logger,
		UploadDir: uploadDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("HTTP server listening on %s (%s)", cfg.Server.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("media service shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown")
	}
	if scheduler != nil {
		scheduler.Stop(ctx)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := publisher.Close(); err != nil {
		logger.WithError(err).Warn("closing event publisher")
	}
	closeRepo(ctx)
	logger.Info("media service stopped")
}
