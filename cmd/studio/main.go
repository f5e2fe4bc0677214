package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/genstudio/internal/admin"
	"github.com/digkill/genstudio/internal/config"
	"github.com/digkill/genstudio/internal/database"
	"github.com/digkill/genstudio/internal/gemini"
	"github.com/digkill/genstudio/internal/httpclient"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/media"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
	"github.com/digkill/genstudio/internal/repository"
	"github.com/digkill/genstudio/internal/service"
	"github.com/digkill/genstudio/internal/storage"
	"github.com/digkill/genstudio/internal/telegram"
	"github.com/digkill/genstudio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.StateDriver, cfg.StateDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, cfg.StateDriver); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	stateRepo := repository.NewStateRepository(repository.NewKVRepository(db, cfg.StateDriver), logr)
	state := stateRepo.Load(ctx, repository.State{
		Ledger:   ledger.Default(cfg.DefaultCreditAllotment),
		Settings: models.Settings{Style: models.StyleProfessional, Size: models.SizeSquare},
	})

	httpClient := httpclient.New(httpclient.Options{Timeout: cfg.RequestTimeout})

	textClient, err := gemini.New(ctx, gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: httpClient,
		Logger:     logr,
	})
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}

	var store media.Store
	if cfg.S3Enabled() {
		uploader, err := storage.NewMediaUploader(storage.Config{
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
		store = uploader
	}

	mediaClient := media.NewClient(media.Options{
		PrimaryAPIKey:    cfg.PrimaryMediaAPIKey,
		PrimaryBaseURL:   cfg.PrimaryMediaBaseURL,
		PrimaryModel:     cfg.PrimaryMediaModel,
		SecondaryBaseURL: cfg.SecondaryMediaBaseURL,
		HTTPClient:       httpClient,
		Store:            store,
		Logger:           logr,
	})

	composer := prompt.NewComposer(prompt.NewEnhancer(textClient, logr))
	generations := service.NewGenerationService(logr, ledger.New(state.Ledger), mediaClient, stateRepo, state.History)
	library := service.NewLibraryService(logr, generations, stateRepo, state.Library)
	settings := service.NewSettingsService(logr, stateRepo, state.Settings)

	if n := generations.Recover(ctx); n > 0 {
		logr.Info("startup recovery finished", "refunded", n)
	}
	defer generations.Wait()

	g, gctx := errgroup.WithContext(ctx)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, admin.Deps{
		Generations: generations,
		Library:     library,
		Settings:    settings,
		Composer:    composer,
	})
	g.Go(func() error {
		return adminServer.Run(gctx)
	})

	if cfg.BotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		bot := telegram.NewBot(botAPI, logr, telegram.Deps{
			Composer:    composer,
			Generations: generations,
			Library:     library,
			Settings:    settings,
		})
		g.Go(func() error {
			return bot.Run(gctx)
		})
	} else {
		logr.Info("telegram bot disabled, TELEGRAM_BOT_TOKEN not set")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("studio stopped", "err", err)
	}
	logr.Info("waiting for in-flight generations")
}
