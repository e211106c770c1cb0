package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

func syntheticMembers(n int) []domain.Member {
	members := make([]domain.Member, 0, n)
	for i := 0; i < n; i++ {
		members = append(members, domain.Member{ID: int64(i + 1), FullName: "User"})
	}
	return members
}

func TestExporter(t *testing.T) {
	ctx := context.Background()
	chat := domain.Chat{ID: 10, Title: "Test", Kind: domain.ChatKindChannel}

	t.Run("Все участники записываются в порядке получения", func(t *testing.T) {
		store := newMemoryStore()
		members := []domain.Member{
			{ID: 1, FullName: "Bob Smith", Username: "bob"},
			{ID: 42, FullName: "Ann Lee"},
		}
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return &sliceMemberIterator{members: members}, nil
			},
		}

		exporter := NewExporter(store, WithFetchDelay(0), WithExporterLogger(discardLogger()))
		count, err := exporter.Export(ctx, svc, chat)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, members, store.tables[10])
	})

	t.Run("Между получением участников выдерживается пауза", func(t *testing.T) {
		store := newMemoryStore()
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return &sliceMemberIterator{members: syntheticMembers(10)}, nil
			},
		}

		const delay = 25 * time.Millisecond
		exporter := NewExporter(store, WithFetchDelay(delay), WithExporterLogger(discardLogger()))

		start := time.Now()
		count, err := exporter.Export(ctx, svc, chat)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, 10, count)
		// Для 10 участников должно пройти не меньше 9 полных пауз.
		assert.GreaterOrEqual(t, elapsed, 9*delay)
	})

	t.Run("Ошибка платформы посреди итерации фатальна", func(t *testing.T) {
		store := newMemoryStore()
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return &sliceMemberIterator{
					members: syntheticMembers(3),
					err:     errors.New("FLOOD_WAIT (30)"),
				}, nil
			},
		}

		exporter := NewExporter(store, WithFetchDelay(0), WithExporterLogger(discardLogger()))
		_, err := exporter.Export(ctx, svc, chat)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPlatform)
		// Частично записанная таблица остается на месте, но файл закрыт.
		assert.True(t, store.Exists(10))
		assert.True(t, store.lastWriter.closed)
	})

	t.Run("Недоступный для сессии чат дает ErrChatUnaddressable", func(t *testing.T) {
		store := newMemoryStore()
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return nil, domain.ErrChatUnaddressable
			},
		}

		exporter := NewExporter(store, WithFetchDelay(0), WithExporterLogger(discardLogger()))
		_, err := exporter.Export(ctx, svc, chat)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrChatUnaddressable)
		assert.False(t, store.Exists(10))
	})

	t.Run("Ошибка записи в хранилище прерывает экспорт", func(t *testing.T) {
		store := newMemoryStore()
		store.writeErr = domain.ErrStorage
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return &sliceMemberIterator{members: syntheticMembers(3)}, nil
			},
		}

		exporter := NewExporter(store, WithFetchDelay(0), WithExporterLogger(discardLogger()))
		_, err := exporter.Export(ctx, svc, chat)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.True(t, store.lastWriter.closed)
	})

	t.Run("Отмена контекста прерывает экспорт", func(t *testing.T) {
		store := newMemoryStore()
		cancelCtx, cancel := context.WithCancel(ctx)
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				it := &sliceMemberIterator{members: syntheticMembers(100)}
				// Отменяем запуск сразу после выдачи первого участника.
				it.onNext = func() { cancel() }
				return it, nil
			},
		}

		exporter := NewExporter(store, WithFetchDelay(time.Second), WithExporterLogger(discardLogger()))
		_, err := exporter.Export(cancelCtx, svc, chat)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, store.lastWriter.closed)
	})

	t.Run("Неудавшиеся экспорты не накапливают открытые файлы", func(t *testing.T) {
		store := newMemoryStore()
		svc := &mockChatService{
			MembersFunc: func(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
				return &sliceMemberIterator{err: errors.New("FLOOD_WAIT (30)")}, nil
			},
		}

		exporter := NewExporter(store, WithFetchDelay(0), WithExporterLogger(discardLogger()))
		for i := 0; i < 50; i++ {
			_, err := exporter.Export(ctx, svc, chat)
			require.Error(t, err)
			require.True(t, store.lastWriter.closed, "Писатель должен закрываться при каждом неудачном экспорте")
		}
	})
}
