package domain

import "fmt"

// ChatKind определяет тип чата Telegram.
type ChatKind string

const (
	// ChatKindUser — личный диалог с пользователем.
	ChatKindUser ChatKind = "user"
	// ChatKindGroup — обычная (небольшая) группа.
	ChatKindGroup ChatKind = "group"
	// ChatKindChannel — канал или супергруппа.
	ChatKindChannel ChatKind = "channel"
)

// Member представляет одного участника чата — одну строку в сохраненной таблице.
// ID является постоянным первичным ключом; Username может отсутствовать.
type Member struct {
	ID       int64
	FullName string
	Username string
}

// Mention возвращает текстовое упоминание участника.
// Если у участника есть username, используется "@username",
// иначе — "@id(полное имя)".
func (m Member) Mention() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return fmt.Sprintf("@%d(%s)", m.ID, m.FullName)
}

// Chat представляет разрешенный чат.
// AccessHash и CanPost привязаны к сессии, которая выполнила разрешение,
// и не переносимы между сессиями (аналог "packed chat" в других клиентах).
// Chat не сохраняется на диск: он создается при разрешении имени
// и потребляется экспортером и диспетчером в рамках одного запуска.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	Kind       ChatKind

	// Broadcast установлен для каналов (в отличие от супергрупп).
	Broadcast bool
	// CanPost сообщает, имеет ли разрешившая сессия право отправлять
	// сообщения в этот чат.
	CanPost bool
}
