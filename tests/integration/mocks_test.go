package integration

import (
	"context"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

// memberIterator - итератор участников поверх среза.
type memberIterator struct {
	members []domain.Member
	cur     domain.Member
}

func (it *memberIterator) Next(ctx context.Context) bool {
	if len(it.members) == 0 {
		return false
	}
	it.cur = it.members[0]
	it.members = it.members[1:]
	return true
}

func (it *memberIterator) Value() domain.Member { return it.cur }
func (it *memberIterator) Err() error           { return nil }

// dialogIterator - итератор диалогов поверх среза.
type dialogIterator struct {
	dialogs []domain.Chat
	cur     domain.Chat
}

func (it *dialogIterator) Next(ctx context.Context) bool {
	if len(it.dialogs) == 0 {
		return false
	}
	it.cur = it.dialogs[0]
	it.dialogs = it.dialogs[1:]
	return true
}

func (it *dialogIterator) Value() domain.Chat { return it.cur }
func (it *dialogIterator) Err() error         { return nil }

// MockChatService - это мок-реализация ports.ChatService без реальных вызовов API.
type MockChatService struct {
	dialogs      []domain.Chat
	members      []domain.Member
	canPost      bool
	membersCalls int
	sentTexts    []string
}

func (m *MockChatService) ResolveChatByName(ctx context.Context, name string) (domain.Chat, error) {
	for _, chat := range m.dialogs {
		if chat.Title == name {
			return chat, nil
		}
	}
	return domain.Chat{}, domain.ErrChatNotFound
}

func (m *MockChatService) Members(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
	m.membersCalls++
	return &memberIterator{members: append([]domain.Member(nil), m.members...)}, nil
}

func (m *MockChatService) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	for _, chat := range m.dialogs {
		if chat.Username == username {
			return chat, nil
		}
	}
	return domain.Chat{}, domain.ErrChatNotFound
}

func (m *MockChatService) SendMessage(ctx context.Context, chat domain.Chat, text string) error {
	m.sentTexts = append(m.sentTexts, text)
	return nil
}

func (m *MockChatService) CanPostIn(ctx context.Context, chat domain.Chat) (bool, error) {
	return m.canPost, nil
}

func (m *MockChatService) Dialogs(ctx context.Context) (ports.DialogIterator, error) {
	return &dialogIterator{dialogs: append([]domain.Chat(nil), m.dialogs...)}, nil
}
