package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"flowbot/internal/bot"
	"flowbot/internal/bot/media"
	"flowbot/internal/bot/state_manager"
	"flowbot/internal/config"
	"flowbot/internal/storage"
	redisstorage "flowbot/internal/storage/redis"
	"flowbot/pkg/logger"
	"flowbot/pkg/redis"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	processingNotice = "⏳ Загружаем материалы, это займёт несколько секунд..."
)

func main() {
	os.Exit(start())
}

// start returns the process exit code. Deferred cleanup, the logger flush
// included, has run by the time main exits.
func start() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	zapLogger, err := logger.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	return exitCode(zapLogger, run(ctx, cfg, zapLogger))
}

func exitCode(zapLogger *zap.Logger, err error) int {
	if err != nil {
		zapLogger.Error("Bot stopped with error", zap.Error(err))
		return 1
	}
	zapLogger.Info("Bot shutdown gracefully")
	return 0
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	redisClient, err := redis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, connectTimeout)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	pgStorage, err := storage.NewPostgresStorage(ctx, cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("init postgres storage: %w", err)
	}
	defer pgStorage.Close()

	if cfg.Database.Migrate {
		if err := storage.RunMigrations(ctx, pgStorage.DB(), zapLogger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(
		cfg.TelegramToken,
		tgbotapi.APIEndpoint,
		&http.Client{Timeout: cfg.HTTPRequestTimeout},
	)
	if err != nil {
		return fmt.Errorf("create bot API: %w", err)
	}
	botAPI.Debug = cfg.Debug

	zapLogger.Info("Bot authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	sessions := redisstorage.New(redisClient, cfg.Redis.SessionTTL)

	var notice string
	if cfg.MediaProcessingNotice {
		notice = processingNotice
	}
	mediaCache := media.New(botAPI, sessions, os.DirFS(cfg.MediaDir), zapLogger, media.Options{
		ProcessingNotice: notice,
	})

	tgBot := bot.New(
		botAPI,
		state_manager.New(sessions),
		pgStorage,
		mediaCache,
		cfg,
		zapLogger,
	)

	if cfg.RunMode == config.RunModeWebhook {
		return runWebhook(ctx, cfg, botAPI, tgBot, zapLogger)
	}

	// getUpdates is refused while a webhook is set.
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return tgBot.Start(ctx, botAPI)
}

func runWebhook(ctx context.Context, cfg *config.Config, botAPI *tgbotapi.BotAPI, tgBot *bot.Bot, zapLogger *zap.Logger) error {
	// WebhookConfig has no secret_token field in this tgbotapi release.
	params := tgbotapi.Params{"url": cfg.WebhookURL}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	if _, err := botAPI.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.WebhookListen,
		Handler:      tgBot.WebhookHandler(cfg.WebhookPath, cfg.WebhookSecret),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("Webhook server listening",
			zap.String("addr", srv.Addr),
			zap.String("path", cfg.WebhookPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
	case <-ctx.Done():
	}

	zapLogger.Info("Shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown webhook server: %w", err)
	}

	tgBot.Wait()
	return nil
}
