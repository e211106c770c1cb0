package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-mention-bot/internal/core/services"
	"telegram-mention-bot/internal/log"
	"telegram-mention-bot/internal/pkg/config"
	"telegram-mention-bot/internal/roster"
	"telegram-mention-bot/internal/server"
	"telegram-mention-bot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой токенов
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := log.NewMaskedLogger(handler)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Инициализация и запуск фоновых сервисов
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	primary := telegram.NewClient(telegram.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		PhoneNumber: cfg.Telegram.PhoneNumber,
		SessionPath: cfg.Telegram.SessionFile,
	}, telegram.WithLogger(logger.With("session", "primary")))

	bot := telegram.NewClient(telegram.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		SessionPath: cfg.Bot.SessionFile,
		BotToken:    cfg.Bot.Token,
	}, telegram.WithLogger(logger.With("session", "bot")))

	primary.Start(appCtx)
	bot.Start(appCtx)

	if err := primary.WaitReady(appCtx); err != nil {
		return fmt.Errorf("primary session did not become ready: %w", err)
	}
	if err := bot.WaitReady(appCtx); err != nil {
		return fmt.Errorf("bot session did not become ready: %w", err)
	}

	// 5. Сборка конвейера и зависимостей сервера
	store := roster.NewStore(cfg.Mention.RosterDir)
	pipeline := services.NewPipeline(
		primary,
		bot,
		store,
		services.NewExporter(store,
			services.WithFetchDelay(cfg.Mention.FetchDelay()),
			services.WithExporterLogger(logger),
		),
		services.NewMentionBuilder(store, logger),
		services.NewDispatcher(logger),
		cfg.Mention.SelfMention,
		logger,
	)

	taskStore := server.NewTaskStore()
	taskStore.StartCleanupTicker(appCtx, 1*time.Hour) // Очистка каждый час

	// 6. Создание HTTP-сервера. /health отражает состояние обеих сессий.
	srv, err := server.New(cfg, pipeline, taskStore, primary, bot)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 7. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		slog.Info("Starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Signal received, shutting down...")

	// Сначала отменяем контекст приложения, чтобы остановить фоновые процессы (клиенты Telegram)
	appCancel()

	// Затем останавливаем HTTP-сервер
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-serverDone

	slog.Info("Server stopped")
	return nil
}
