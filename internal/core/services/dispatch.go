package services

import (
	"context"
	"fmt"
	"log/slog"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

// Dispatcher выбирает отправляющую сессию и доставляет строку упоминаний
// в целевой чат.
//
// Права на публикацию в группах и каналах у пользовательского аккаунта и
// у бота часто различаются, поэтому отправка устроена как машина состояний
// над двумя сессиями: если пользовательская сессия сама вправе публиковать,
// она отправляет напрямую; иначе отправляет бот, которому нужен собственный
// адресный токен — access hash пользовательской сессии для него бесполезен.
type Dispatcher struct {
	log *slog.Logger
}

// NewDispatcher создает новый диспетчер отправки.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// Dispatch отправляет текст в чат от имени подходящей сессии.
// Ошибка отправки фатальна: повторов и частичной доставки нет,
// сообщение атомарно на уровне платформы.
func (d *Dispatcher) Dispatch(ctx context.Context, primary, bot ports.ChatService, chat domain.Chat, text string) error {
	canPost, err := primary.CanPostIn(ctx, chat)
	if err != nil {
		return fmt.Errorf("%w: failed to check posting rights in chat %d: %w", domain.ErrPlatform, chat.ID, err)
	}

	if canPost {
		d.log.InfoContext(ctx, "Sending mentions via primary session", "chat_id", chat.ID)
		if err := primary.SendMessage(ctx, chat, text); err != nil {
			return fmt.Errorf("%w: primary session failed to send to chat %d: %w", domain.ErrPlatform, chat.ID, err)
		}
		return nil
	}

	target, err := d.resolveForBot(ctx, bot, chat)
	if err != nil {
		return err
	}

	d.log.InfoContext(ctx, "Sending mentions via bot session", "chat_id", target.ID)
	if err := bot.SendMessage(ctx, target, text); err != nil {
		return fmt.Errorf("%w: bot session failed to send to chat %d: %w", domain.ErrPlatform, target.ID, err)
	}
	return nil
}

// resolveForBot получает адресуемый ботом токен того же чата.
// Публичный чат разрешается по username; приватный — линейным
// сканированием собственных диалогов бота с точным совпадением имени,
// первое совпадение выигрывает.
func (d *Dispatcher) resolveForBot(ctx context.Context, bot ports.ChatService, chat domain.Chat) (domain.Chat, error) {
	if chat.Username != "" {
		d.log.DebugContext(ctx, "Resolving chat for bot by username", "username", chat.Username)
		target, err := bot.ResolveUsername(ctx, chat.Username)
		if err != nil {
			return domain.Chat{}, fmt.Errorf("%w: bot could not resolve username %q: %w", domain.ErrChatResolution, chat.Username, err)
		}
		return target, nil
	}

	d.log.DebugContext(ctx, "Chat has no username, scanning bot dialogs", "chat_title", chat.Title)
	iter, err := bot.Dialogs(ctx)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("%w: failed to list bot dialogs: %w", domain.ErrPlatform, err)
	}
	for iter.Next(ctx) {
		if dialog := iter.Value(); dialog.Title == chat.Title {
			return dialog, nil
		}
	}
	if err := iter.Err(); err != nil {
		return domain.Chat{}, fmt.Errorf("%w: bot dialog scan failed: %w", domain.ErrPlatform, err)
	}

	return domain.Chat{}, fmt.Errorf("%w: bot has no dialog named %q", domain.ErrChatNotFound, chat.Title)
}
