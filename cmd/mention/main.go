package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"telegram-mention-bot/internal/core/services"
	"telegram-mention-bot/internal/log"
	"telegram-mention-bot/internal/pkg/config"
	"telegram-mention-bot/internal/roster"
	"telegram-mention-bot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mention run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику одного запуска рассылки упоминаний.
func run() error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой токенов
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Запуск обеих сессий: пользовательской и бот-сессии.
	// Сессии независимы и не разделяют изменяемое состояние.
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

	primary.Start(ctx)
	bot.Start(ctx)

	if err := primary.WaitReady(ctx); err != nil {
		return fmt.Errorf("primary session did not become ready: %w", err)
	}
	if err := bot.WaitReady(ctx); err != nil {
		return fmt.Errorf("bot session did not become ready: %w", err)
	}

	// 5. Сборка и запуск конвейера
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

	if _, err := pipeline.Run(ctx, cfg.Mention.ChatName); err != nil {
		return err
	}
	return nil
}

// newLogger создает логгер с уровнем и форматом из конфигурации.
func newLogger(cfg *config.Config) *slog.Logger {
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

	return log.NewMaskedLogger(handler)
}
