package ports

import (
	"context"

	"telegram-mention-bot/internal/domain"
)

// MemberIterator — ленивая последовательность участников чата.
// Последовательность конечна, но ее длина заранее неизвестна;
// итерация не возобновляема с середины.
type MemberIterator interface {
	// Next переходит к следующему участнику. Возвращает false,
	// когда участники закончились или произошла ошибка.
	Next(ctx context.Context) bool
	// Value возвращает текущего участника. Действительно только после
	// успешного вызова Next.
	Value() domain.Member
	// Err возвращает ошибку, прервавшую итерацию, если она была.
	Err() error
}

// DialogIterator — ленивая последовательность диалогов сессии.
type DialogIterator interface {
	Next(ctx context.Context) bool
	Value() domain.Chat
	Err() error
}

// ChatService определяет возможности одной аутентифицированной сессии
// Telegram. Конвейер работает с двумя независимыми экземплярами:
// пользовательской сессией и бот-сессией, каждая со своими правами
// и своими адресными токенами.
type ChatService interface {
	// ResolveChatByName находит чат по отображаемому имени среди
	// диалогов сессии. Возвращает domain.ErrChatNotFound, если совпадений нет.
	ResolveChatByName(ctx context.Context, name string) (domain.Chat, error)
	// Members возвращает ленивую последовательность участников чата.
	Members(ctx context.Context, chat domain.Chat) (MemberIterator, error)
	// ResolveUsername разрешает публичный username в чат, адресуемый
	// этой сессией.
	ResolveUsername(ctx context.Context, username string) (domain.Chat, error)
	// SendMessage отправляет текстовое сообщение в чат.
	SendMessage(ctx context.Context, chat domain.Chat, text string) error
	// CanPostIn сообщает, имеет ли эта сессия право публиковать в чате.
	CanPostIn(ctx context.Context, chat domain.Chat) (bool, error)
	// Dialogs возвращает ленивую последовательность собственных диалогов сессии.
	Dialogs(ctx context.Context) (DialogIterator, error)
}

// RecordWriter записывает записи участников по одной, по мере их получения.
type RecordWriter interface {
	// Write добавляет одну запись в таблицу.
	Write(member domain.Member) error
	// Close сбрасывает буферы и закрывает файл таблицы.
	Close() error
}

// RecordReader читает записи участников в порядке их записи.
type RecordReader interface {
	// Read возвращает следующую запись. По окончании файла возвращает io.EOF.
	Read() (domain.Member, error)
	Close() error
}

// RosterStore управляет сохраненными таблицами участников, по одной на чат.
// Ключом хранения служит числовой идентификатор чата.
type RosterStore interface {
	// Exists сообщает, существует ли уже таблица для чата.
	// Само существование файла является единственным сигналом валидности кэша.
	Exists(chatID int64) bool
	// Create создает (или перезаписывает) таблицу для чата.
	Create(chatID int64) (RecordWriter, error)
	// Open открывает существующую таблицу для чтения.
	Open(chatID int64) (RecordReader, error)
	// Path возвращает путь к файлу таблицы для чата.
	Path(chatID int64) string
}
