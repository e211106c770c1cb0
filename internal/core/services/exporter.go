package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

// defaultFetchDelay — фиксированная пауза между получением соседних
// участников, чтобы не превышать лимиты Telegram. Пауза не адаптивна
// и не увеличивается при троттлинге: любая ошибка платформы фатальна.
const defaultFetchDelay = 25 * time.Millisecond

// ExporterOption — функциональная опция для настройки экспортера.
type ExporterOption func(*Exporter)

// WithFetchDelay устанавливает паузу между получением участников.
func WithFetchDelay(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithExporterLogger устанавливает логгер экспортера.
func WithExporterLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// Exporter перечисляет участников чата через постраничный API
// и инкрементально записывает их в таблицу хранилища.
// Сервис не хранит состояние между запусками.
type Exporter struct {
	store ports.RosterStore
	delay time.Duration
	log   *slog.Logger
}

// NewExporter создает новый экспортер участников.
func NewExporter(store ports.RosterStore, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store: store,
		delay: defaultFetchDelay,
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Export выгружает всех участников чата в таблицу хранилища.
// Записи пишутся по мере получения, так что в памяти находится не более
// одного участника. Возвращает количество выгруженных участников.
// При ошибке посреди итерации файл остается частично записанным.
func (e *Exporter) Export(ctx context.Context, svc ports.ChatService, chat domain.Chat) (int, error) {
	path := e.store.Path(chat.ID)
	e.log.DebugContext(ctx, "Generating member roster", "chat_id", chat.ID, "path", path)

	iter, err := svc.Members(ctx, chat)
	if err != nil {
		if errors.Is(err, domain.ErrChatUnaddressable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: failed to list members of chat %d: %w", domain.ErrPlatform, chat.ID, err)
	}

	w, err := e.store.Create(chat.ID)
	if err != nil {
		return 0, err
	}

	count := 0
	for iter.Next(ctx) {
		if err := w.Write(iter.Value()); err != nil {
			_ = w.Close()
			return count, err
		}
		count++

		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			_ = w.Close()
			return count, fmt.Errorf("%w: export interrupted: %w", domain.ErrPlatform, ctx.Err())
		}
	}
	if err := iter.Err(); err != nil {
		// Файл остается частично записанным, но дескриптор освобождается.
		_ = w.Close()
		return count, fmt.Errorf("%w: member listing for chat %d failed: %w", domain.ErrPlatform, chat.ID, err)
	}

	if err := w.Close(); err != nil {
		return count, err
	}

	e.log.InfoContext(ctx, "Exported members to roster", "chat_id", chat.ID, "path", path, "count", count)
	return count, nil
}
