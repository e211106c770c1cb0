package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"telegram-mention-bot/internal/domain"
)

// dialogIterator постранично обходит диалоги сессии через messages.getDialogs.
// Последовательность ленивая: очередная страница запрашивается только
// когда исчерпана предыдущая.
type dialogIterator struct {
	client *Client

	buf []domain.Chat
	cur domain.Chat

	offsetDate int
	offsetID   int
	offsetPeer tg.InputPeerClass

	done bool
	err  error
}

func (it *dialogIterator) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		if !it.fetchPage(ctx) {
			return false
		}
	}

	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *dialogIterator) Value() domain.Chat {
	return it.cur
}

func (it *dialogIterator) Err() error {
	return it.err
}

// fetchPage запрашивает следующую страницу диалогов и переводит смещения.
func (it *dialogIterator) fetchPage(ctx context.Context) bool {
	c := it.client
	c.log.DebugContext(ctx, "Executing API call: MessagesGetDialogs", "offset_id", it.offsetID)

	var res tg.MessagesDialogsClass
	err := c.do(ctx, func(ctx context.Context) error {
		r, err := c.tgRunner.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: it.offsetDate,
			OffsetID:   it.offsetID,
			OffsetPeer: it.offsetPeer,
			Limit:      dialogPageSize,
		})
		if err == nil {
			res = r
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call MessagesGetDialogs failed", "error", err)
		}
		it.err = fmt.Errorf("%w: list dialogs: %w", domain.ErrPlatform, err)
		return false
	}

	var dialogs []tg.DialogClass
	var messages []tg.MessageClass
	var chats []tg.ChatClass
	var users []tg.UserClass

	switch d := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		it.done = true
	case *tg.MessagesDialogsSlice:
		dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		if len(dialogs) < dialogPageSize {
			it.done = true
		}
	case *tg.MessagesDialogsNotModified:
		it.done = true
		return false
	default:
		it.err = fmt.Errorf("%w: unexpected dialogs response %T", domain.ErrPlatform, res)
		return false
	}

	if len(dialogs) == 0 {
		it.done = true
		return false
	}

	chatIndex := make(map[int64]tg.ChatClass, len(chats))
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			chatIndex[v.ID] = v
		case *tg.Channel:
			chatIndex[v.ID] = v
		}
	}
	userIndex := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			userIndex[user.ID] = user
		}
	}

	for _, d := range dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		if chat, ok := chatFromPeer(dlg.Peer, chatIndex, userIndex); ok {
			it.buf = append(it.buf, chat)
		}
	}

	// Смещения для следующей страницы берутся из последнего диалога
	// и его верхнего сообщения.
	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		it.done = true
		return len(it.buf) > 0
	}
	it.offsetID = last.TopMessage
	it.offsetPeer = inputPeerFromPeer(last.Peer, chatIndex, userIndex)
	for _, m := range messages {
		if msg, ok := m.(*tg.Message); ok && msg.ID == last.TopMessage {
			it.offsetDate = msg.Date
			break
		}
	}

	return len(it.buf) > 0 || !it.done
}

// memberIterator постранично обходит участников канала или группы.
// Для каналов используется channels.getParticipants, для обычных групп —
// единственный вызов messages.getFullChat.
type memberIterator struct {
	client *Client
	chat   domain.Chat

	buf    []domain.Member
	cur    domain.Member
	offset int
	done   bool
	err    error
}

func (it *memberIterator) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		if it.chat.Kind == domain.ChatKindChannel {
			it.fetchChannelPage(ctx)
		} else {
			it.fetchGroupMembers(ctx)
		}
	}
	if len(it.buf) == 0 {
		return false
	}

	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *memberIterator) Value() domain.Member {
	return it.cur
}

func (it *memberIterator) Err() error {
	return it.err
}

func (it *memberIterator) fetchChannelPage(ctx context.Context) {
	c := it.client
	c.log.DebugContext(ctx, "Executing API call: ChannelsGetParticipants", "channel_id", it.chat.ID, "offset", it.offset)

	var res tg.ChannelsChannelParticipantsClass
	err := c.do(ctx, func(ctx context.Context) error {
		r, err := c.tgRunner.API().ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: &tg.InputChannel{ChannelID: it.chat.ID, AccessHash: it.chat.AccessHash},
			Filter:  &tg.ChannelParticipantsRecent{},
			Offset:  it.offset,
			Limit:   dialogPageSize,
		})
		if err == nil {
			res = r
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call ChannelsGetParticipants failed", "channel_id", it.chat.ID, "error", err)
		}
		it.err = err
		return
	}

	page, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		it.err = fmt.Errorf("unexpected participants response %T", res)
		return
	}
	if len(page.Participants) == 0 {
		it.done = true
		return
	}
	it.offset += len(page.Participants)

	userIndex := make(map[int64]*tg.User, len(page.Users))
	for _, u := range page.Users {
		if user, ok := u.(*tg.User); ok {
			userIndex[user.ID] = user
		}
	}

	for _, p := range page.Participants {
		userID, ok := participantUserID(p)
		if !ok {
			continue
		}
		user, ok := userIndex[userID]
		if !ok {
			continue
		}
		it.buf = append(it.buf, memberFromUser(user))
	}
}

func (it *memberIterator) fetchGroupMembers(ctx context.Context) {
	c := it.client
	c.log.DebugContext(ctx, "Executing API call: MessagesGetFullChat", "chat_id", it.chat.ID)

	var full *tg.MessagesChatFull
	err := c.do(ctx, func(ctx context.Context) error {
		r, err := c.tgRunner.API().MessagesGetFullChat(ctx, it.chat.ID)
		if err == nil {
			full = r
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call MessagesGetFullChat failed", "chat_id", it.chat.ID, "error", err)
		}
		it.err = err
		return
	}

	// Обычная группа отдает всех участников одной страницей.
	it.done = true
	for _, u := range full.Users {
		if user, ok := u.(*tg.User); ok {
			it.buf = append(it.buf, memberFromUser(user))
		}
	}
}

// participantUserID извлекает идентификатор пользователя из любого
// варианта участника канала.
func participantUserID(p tg.ChannelParticipantClass) (int64, bool) {
	switch v := p.(type) {
	case *tg.ChannelParticipant:
		return v.UserID, true
	case *tg.ChannelParticipantSelf:
		return v.UserID, true
	case *tg.ChannelParticipantCreator:
		return v.UserID, true
	case *tg.ChannelParticipantAdmin:
		return v.UserID, true
	default:
		return 0, false
	}
}

func memberFromUser(u *tg.User) domain.Member {
	return domain.Member{
		ID:       u.ID,
		FullName: fullName(u),
		Username: u.Username,
	}
}

func fullName(u *tg.User) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
}

func chatFromChannel(ch *tg.Channel) domain.Chat {
	accessHash, _ := ch.GetAccessHash()
	return domain.Chat{
		ID:         ch.ID,
		AccessHash: accessHash,
		Title:      ch.Title,
		Username:   ch.Username,
		Kind:       domain.ChatKindChannel,
		Broadcast:  ch.Broadcast,
		CanPost:    canPostInChannel(ch),
	}
}

// canPostInChannel вычисляет право сессии публиковать в канале из флагов,
// которые сервер вернул вместе с самим каналом.
func canPostInChannel(ch *tg.Channel) bool {
	if ch.Left {
		return false
	}
	if ch.Broadcast {
		// В канале публикуют только создатель и администраторы с правом постинга.
		if ch.Creator {
			return true
		}
		rights, ok := ch.GetAdminRights()
		return ok && rights.PostMessages
	}
	// В супергруппе публикация разрешена, если не запрещена по умолчанию
	// и участник не ограничен индивидуально.
	if rights, ok := ch.GetDefaultBannedRights(); ok && rights.SendMessages {
		return false
	}
	if banned, ok := ch.GetBannedRights(); ok && banned.SendMessages {
		return false
	}
	return true
}

func chatFromGroup(g *tg.Chat) domain.Chat {
	canPost := !g.Left
	if rights, ok := g.GetDefaultBannedRights(); ok && rights.SendMessages {
		canPost = false
	}
	return domain.Chat{
		ID:      g.ID,
		Title:   g.Title,
		Kind:    domain.ChatKindGroup,
		CanPost: canPost,
	}
}

func chatFromUser(u *tg.User) domain.Chat {
	accessHash, _ := u.GetAccessHash()
	return domain.Chat{
		ID:         u.ID,
		AccessHash: accessHash,
		Title:      fullName(u),
		Username:   u.Username,
		Kind:       domain.ChatKindUser,
		CanPost:    true,
	}
}

func chatFromPeer(peer tg.PeerClass, chats map[int64]tg.ChatClass, users map[int64]*tg.User) (domain.Chat, bool) {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		if ch, ok := chats[p.ChannelID].(*tg.Channel); ok {
			return chatFromChannel(ch), true
		}
	case *tg.PeerChat:
		if g, ok := chats[p.ChatID].(*tg.Chat); ok {
			return chatFromGroup(g), true
		}
	case *tg.PeerUser:
		if u, ok := users[p.UserID]; ok {
			return chatFromUser(u), true
		}
	}
	return domain.Chat{}, false
}

func inputPeerFromPeer(peer tg.PeerClass, chats map[int64]tg.ChatClass, users map[int64]*tg.User) tg.InputPeerClass {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		if ch, ok := chats[p.ChannelID].(*tg.Channel); ok {
			if hash, ok := ch.GetAccessHash(); ok {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: hash}
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerUser:
		if u, ok := users[p.UserID]; ok {
			if hash, ok := u.GetAccessHash(); ok {
				return &tg.InputPeerUser{UserID: u.ID, AccessHash: hash}
			}
		}
	}
	return &tg.InputPeerEmpty{}
}
