package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/magicdeeds/magic-studio/internal/api"
	"github.com/magicdeeds/magic-studio/internal/auth"
	"github.com/magicdeeds/magic-studio/internal/config"
	"github.com/magicdeeds/magic-studio/internal/database"
	"github.com/magicdeeds/magic-studio/internal/gemini"
	"github.com/magicdeeds/magic-studio/internal/repository"
	"github.com/magicdeeds/magic-studio/internal/service"
	"github.com/magicdeeds/magic-studio/internal/storage"
	"github.com/magicdeeds/magic-studio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	geminiClient := gemini.NewClient(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	energyRepo := repository.NewEnergyRepository(db)
	promoRepo := repository.NewPromoRepository(db)

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)

	userService := service.NewUserService(cfg, logr, userRepo, energyRepo, notificationRepo, jwtService)
	generationService := service.NewGenerationService(cfg, logr, userRepo, archiveRepo, notificationRepo, energyRepo, geminiClient, uploader)
	archiveService := service.NewArchiveService(archiveRepo)
	notificationService := service.NewNotificationService(notificationRepo)
	promoService := service.NewPromoService(promoRepo)

	server := api.NewServer(cfg.ListenAddr, logr, jwtService, cfg.AdminUsername, cfg.AdminPassword, userService, generationService, archiveService, notificationService, promoService)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
