package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/handler"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/job"
	"github.com/xxxsen/famlearn/internal/middleware"
	"github.com/xxxsen/famlearn/internal/repo"
	"github.com/xxxsen/famlearn/internal/schedule"
	"github.com/xxxsen/famlearn/internal/service"
)

const sessionPurgeSpec = "*/30 * * * *"

// buildProvider returns the configured provider, wrapped in a fallback group
// when fallbacks are set. A provider that cannot be built leaves AI features
// unavailable instead of failing startup.
func buildProvider(cfg config.AIConfig) ai.IProvider {
	logger := logutil.GetLogger(context.Background())
	primary, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		logger.Warn("init ai provider failed, ai features disabled", zap.String("provider", cfg.Provider), zap.Error(err))
		return nil
	}
	if len(cfg.Fallbacks) == 0 {
		return primary
	}
	entries := []ai.GroupEntry{{Provider: primary}}
	for _, fb := range cfg.Fallbacks {
		p, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			logger.Warn("init fallback ai provider failed", zap.String("provider", fb.Provider), zap.Error(err))
			continue
		}
		entries = append(entries, ai.GroupEntry{Provider: p, Model: fb.Model})
	}
	return ai.NewGroupProvider(entries)
}

func buildIndex(cfg config.IndexConfig, db *repo.DB) (index.Store, error) {
	if cfg.Type == "sql" {
		return repo.NewIndexRepo(db), nil
	}
	return index.NewJSONStore(cfg.Path)
}

func runServer(cfg *config.Config, db *repo.DB) error {
	logger := logutil.GetLogger(context.Background())
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("index", cfg.Index.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	idx, err := buildIndex(cfg.Index, db)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	manager := ai.NewManager(buildProvider(cfg.AI), ai.ManagerConfig{
		Model:         cfg.AI.Model,
		VisionModel:   cfg.AI.VisionModel,
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})
	users := service.Users(cfg.Users)
	cacheTTL := time.Duration(cfg.AI.CacheTTLMinutes) * time.Minute

	uploadService := service.NewUploadService(cfg.Upload, repo.NewUploadSessionRepo(db))
	bookService := service.NewBookService(service.BookServiceConfig{
		FilesDir:    cfg.Upload.FilesDir,
		MaxBookSize: cfg.Upload.MaxBookSize,
		CacheSize:   cfg.AI.CacheSize,
		CacheTTL:    cacheTTL,
	}, manager, store, idx, users)
	scanService := service.NewScanService(service.ScanServiceConfig{CacheSize: cfg.AI.CacheSize, CacheTTL: cacheTTL}, manager, store, idx, users)
	studyService := service.NewStudyService(manager, store, idx, users)
	authService := service.NewAuthService(service.AuthServiceConfig{
		Secret:        []byte(cfg.Auth.JWTSecret),
		TTL:           time.Duration(cfg.Auth.TTLHours) * time.Hour,
		StudentPIN:    cfg.Auth.StudentPIN,
		StudentUserID: cfg.Auth.StudentUserID,
		AdminPINHash:  cfg.Auth.AdminPINHash,
		MaxFailures:   cfg.Auth.MaxFailures,
		LockDuration:  time.Duration(cfg.Auth.LockMinutes) * time.Minute,
	}, repo.NewAuthRepo(db))

	deps := handler.RouterDeps{
		Auth:       handler.NewAuthHandler(authService),
		Uploads:    handler.NewUploadHandler(uploadService, bookService, cfg.Upload.MaxChunkSize),
		Books:      handler.NewBookHandler(bookService, cfg.Upload.MaxBookSize),
		Scans:      handler.NewScanHandler(scanService),
		Study:      handler.NewStudyHandler(studyService),
		Files:      handler.NewFileHandler(store),
		AIInterval: time.Duration(cfg.AI.MinIntervalMS) * time.Millisecond,
	}
	if cfg.Auth.Required {
		deps.Verifier = authService
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	cleanupJob := job.NewChunkCleanupJob(uploadService)
	if err := scheduler.AddJob(cleanupJob, cfg.Upload.CleanupSpec); err != nil {
		return fmt.Errorf("schedule chunk cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewSessionPurgeJob(authService), sessionPurgeSpec); err != nil {
		return fmt.Errorf("schedule session purge: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if err := scheduler.Trigger(cleanupJob.Name()); err != nil {
		logger.Warn("initial chunk cleanup failed", zap.Error(err))
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
