package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"telegram-mention-bot/internal/ports"
)

// MentionBuilder складывает сохраненную таблицу участников в одну строку
// упоминаний, разделенных пробелами.
type MentionBuilder struct {
	store ports.RosterStore
	log   *slog.Logger
}

// NewMentionBuilder создает новый построитель упоминаний.
func NewMentionBuilder(store ports.RosterStore, log *slog.Logger) *MentionBuilder {
	if log == nil {
		log = slog.Default()
	}
	return &MentionBuilder{store: store, log: log}
}

// Build читает таблицу чата и возвращает строку упоминаний.
// Упоминания идут в порядке строк файла, разделены одиночным пробелом,
// после последнего упоминания стоит завершающий пробел — формат
// сохраняется в точности ради совместимости. Токен, совпадающий с
// selfMention, пропускается, чтобы бот не упоминал сам себя.
// Повторяющиеся записи не дедуплицируются.
func (b *MentionBuilder) Build(ctx context.Context, chatID int64, selfMention string) (string, error) {
	r, err := b.store.Open(chatID)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	b.log.DebugContext(ctx, "Parsing member roster", "chat_id", chatID, "path", b.store.Path(chatID))

	var sb strings.Builder
	for {
		m, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		mention := m.Mention()
		if mention == selfMention {
			continue
		}
		sb.WriteString(mention)
		sb.WriteByte(' ')
	}

	return sb.String(), nil
}
