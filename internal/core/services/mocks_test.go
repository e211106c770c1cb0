package services

import (
	"context"
	"fmt"
	"io"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

// sliceMemberIterator - итератор участников поверх среза, для тестов.
type sliceMemberIterator struct {
	members []domain.Member
	cur     domain.Member
	err     error
	// onNext вызывается перед выдачей каждого участника.
	onNext func()
}

func (it *sliceMemberIterator) Next(ctx context.Context) bool {
	if it.err != nil || len(it.members) == 0 {
		return false
	}
	if it.onNext != nil {
		it.onNext()
	}
	it.cur = it.members[0]
	it.members = it.members[1:]
	return true
}

func (it *sliceMemberIterator) Value() domain.Member { return it.cur }
func (it *sliceMemberIterator) Err() error           { return it.err }

// sliceDialogIterator - итератор диалогов поверх среза, для тестов.
type sliceDialogIterator struct {
	dialogs []domain.Chat
	cur     domain.Chat
	err     error
}

func (it *sliceDialogIterator) Next(ctx context.Context) bool {
	if len(it.dialogs) == 0 {
		return false
	}
	it.cur = it.dialogs[0]
	it.dialogs = it.dialogs[1:]
	return true
}

func (it *sliceDialogIterator) Value() domain.Chat { return it.cur }
func (it *sliceDialogIterator) Err() error         { return it.err }

// mockChatService - мок-реализация ports.ChatService для тестирования
type mockChatService struct {
	ResolveChatByNameFunc func(ctx context.Context, name string) (domain.Chat, error)
	MembersFunc           func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error)
	ResolveUsernameFunc   func(ctx context.Context, username string) (domain.Chat, error)
	SendMessageFunc       func(ctx context.Context, chat domain.Chat, text string) error
	CanPostInFunc         func(ctx context.Context, chat domain.Chat) (bool, error)
	DialogsFunc           func(ctx context.Context) (ports.DialogIterator, error)

	// Счетчики вызовов для проверки поведения.
	membersCalls int
	sendCalls    int
	dialogCalls  int
}

func (m *mockChatService) ResolveChatByName(ctx context.Context, name string) (domain.Chat, error) {
	if m.ResolveChatByNameFunc != nil {
		return m.ResolveChatByNameFunc(ctx, name)
	}
	return domain.Chat{}, domain.ErrChatNotFound
}

func (m *mockChatService) Members(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
	m.membersCalls++
	if m.MembersFunc != nil {
		return m.MembersFunc(ctx, chat)
	}
	return &sliceMemberIterator{}, nil
}

func (m *mockChatService) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	if m.ResolveUsernameFunc != nil {
		return m.ResolveUsernameFunc(ctx, username)
	}
	return domain.Chat{}, domain.ErrChatNotFound
}

func (m *mockChatService) SendMessage(ctx context.Context, chat domain.Chat, text string) error {
	m.sendCalls++
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chat, text)
	}
	return nil
}

func (m *mockChatService) CanPostIn(ctx context.Context, chat domain.Chat) (bool, error) {
	if m.CanPostInFunc != nil {
		return m.CanPostInFunc(ctx, chat)
	}
	return false, nil
}

func (m *mockChatService) Dialogs(ctx context.Context) (ports.DialogIterator, error) {
	m.dialogCalls++
	if m.DialogsFunc != nil {
		return m.DialogsFunc(ctx)
	}
	return &sliceDialogIterator{}, nil
}

// memoryStore - хранилище таблиц в памяти, для тестов без файловой системы.
type memoryStore struct {
	tables map[int64][]domain.Member

	createErr error
	writeErr  error
	closeErr  error

	// lastWriter - последний выданный Create писатель, для проверки закрытия.
	lastWriter *memoryWriter
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tables: make(map[int64][]domain.Member)}
}

func (s *memoryStore) Exists(chatID int64) bool {
	_, ok := s.tables[chatID]
	return ok
}

func (s *memoryStore) Create(chatID int64) (ports.RecordWriter, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.tables[chatID] = []domain.Member{}
	s.lastWriter = &memoryWriter{store: s, chatID: chatID}
	return s.lastWriter, nil
}

func (s *memoryStore) Open(chatID int64) (ports.RecordReader, error) {
	members, ok := s.tables[chatID]
	if !ok {
		return nil, fmt.Errorf("%w: таблица для чата %d отсутствует", domain.ErrRecordRead, chatID)
	}
	return &memoryReader{members: members}, nil
}

func (s *memoryStore) Path(chatID int64) string {
	return fmt.Sprintf("memory/%d.csv", chatID)
}

type memoryWriter struct {
	store  *memoryStore
	chatID int64
	closed bool
}

func (w *memoryWriter) Write(m domain.Member) error {
	if w.store.writeErr != nil {
		return w.store.writeErr
	}
	w.store.tables[w.chatID] = append(w.store.tables[w.chatID], m)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return w.store.closeErr
}

type memoryReader struct {
	members []domain.Member
}

func (r *memoryReader) Read() (domain.Member, error) {
	if len(r.members) == 0 {
		return domain.Member{}, io.EOF
	}
	m := r.members[0]
	r.members = r.members[1:]
	return m, nil
}

func (r *memoryReader) Close() error { return nil }
