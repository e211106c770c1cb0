package services

import (
	"context"
	"fmt"
	"log/slog"

	"telegram-mention-bot/internal/ports"
)

// Pipeline — оркестратор одного запуска: разрешение чата по имени,
// проверка кэша, экспорт участников при необходимости, сборка строки
// упоминаний и отправка.
//
// Запуск строго последовательный: никакие две операции платформы не
// выполняются одновременно. Параллельные запуски с одним и тем же ключом
// хранения небезопасны — вызывающая сторона обязана их сериализовать.
type Pipeline struct {
	primary  ports.ChatService
	bot      ports.ChatService
	store    ports.RosterStore
	exporter *Exporter
	builder  *MentionBuilder
	sender   *Dispatcher

	selfMention string
	log         *slog.Logger
}

// NewPipeline собирает конвейер из готовых компонентов.
// selfMention — упоминание самого бота, исключаемое из итоговой строки.
func NewPipeline(
	primary ports.ChatService,
	bot ports.ChatService,
	store ports.RosterStore,
	exporter *Exporter,
	builder *MentionBuilder,
	sender *Dispatcher,
	selfMention string,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		primary:     primary,
		bot:         bot,
		store:       store,
		exporter:    exporter,
		builder:     builder,
		sender:      sender,
		selfMention: selfMention,
		log:         log,
	}
}

// Run выполняет один запуск конвейера для чата с указанным именем
// и возвращает отправленную строку упоминаний.
func (p *Pipeline) Run(ctx context.Context, chatName string) (string, error) {
	chat, err := p.primary.ResolveChatByName(ctx, chatName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve chat %q: %w", chatName, err)
	}
	p.log.InfoContext(ctx, "Resolved chat", "chat_name", chatName, "chat_id", chat.ID)

	if p.store.Exists(chat.ID) {
		// Существование файла — единственный сигнал валидности кэша.
		p.log.InfoContext(ctx, "Roster already exists, skipping export", "chat_id", chat.ID, "path", p.store.Path(chat.ID))
	} else {
		count, err := p.exporter.Export(ctx, p.primary, chat)
		if err != nil {
			return "", fmt.Errorf("failed to export members of chat %d: %w", chat.ID, err)
		}
		p.log.InfoContext(ctx, "Updated roster", "chat_id", chat.ID, "count", count)
	}

	mentions, err := p.builder.Build(ctx, chat.ID, p.selfMention)
	if err != nil {
		return "", fmt.Errorf("failed to build mentions for chat %d: %w", chat.ID, err)
	}
	p.log.InfoContext(ctx, "Generated mentions", "chat_id", chat.ID)

	if err := p.sender.Dispatch(ctx, p.primary, p.bot, chat, mentions); err != nil {
		return "", fmt.Errorf("failed to send mentions to chat %d: %w", chat.ID, err)
	}
	p.log.InfoContext(ctx, "Sent all mentions", "chat_id", chat.ID)

	return mentions, nil
}
