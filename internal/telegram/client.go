package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
	trm "telegram-mention-bot/internal/pkg/term"
)

var (
	// ErrFloodWaitActive возвращается, когда клиент не может выполнить запрос из-за активного ограничения FLOOD_WAIT.
	ErrFloodWaitActive = errors.New("client is in flood wait")
	// floodWaitRegex используется для парсинга длительности ожидания из сообщения об ошибке.
	floodWaitRegex = regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`)
)

// dialogPageSize — размер страницы при постраничном обходе диалогов и участников.
const dialogPageSize = 100

// telegramAPI представляет необработанные методы API, которые мы используем.
type telegramAPI interface {
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetDialogs(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	ChannelsGetParticipants(ctx context.Context, req *tg.ChannelsGetParticipantsRequest) (tg.ChannelsChannelParticipantsClass, error)
	MessagesGetFullChat(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error)
	MessagesSendMessage(ctx context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	HelpGetConfig(ctx context.Context) (*tg.Config, error)
}

// telegramAuth представляет клиент аутентификации.
type telegramAuth interface {
	auth.FlowClient
	Bot(ctx context.Context, token string) (*tg.AuthAuthorization, error)
}

// telegramRunner определяет зависимости от клиента gotd.
// Это позволяет создавать моки в тестах.
type telegramRunner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() telegramAPI
	Auth() telegramAuth
}

// prodRunner является оберткой вокруг реального *telegram.Client для удовлетворения интерфейса telegramRunner.
type prodRunner struct {
	*telegram.Client
}

func (p *prodRunner) API() telegramAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() telegramAuth {
	return p.Client.Auth()
}

// authFlow определяет интерфейс для процесса аутентификации.
type authFlow interface {
	Run(ctx context.Context, client auth.FlowClient) error
}

// Client представляет одну аутентифицированную сессию Telegram —
// пользовательскую или бот-сессию. Он инкапсулирует аутентификацию,
// обработку ошибок FLOOD_WAIT и реализует ports.ChatService.
// Две сессии никогда не разделяют изменяемое состояние.
type Client struct {
	id         string
	botToken   string
	tgRunner   telegramRunner
	authFlow   authFlow
	isTerminal func(fd int) bool
	clock      func() time.Time
	log        *slog.Logger

	mu             sync.RWMutex
	unhealthyUntil time.Time
	runErr         chan error
	ready          chan struct{}
	startOnce      sync.Once
}

var _ ports.ChatService = (*Client)(nil)

// Config содержит конфигурацию для создания нового клиента.
type Config struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionPath string
	// BotToken, если задан, переключает клиент на бот-аутентификацию.
	BotToken string
}

// ClientOption определяет функциональную опцию для конфигурации клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер для клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient создает новый экземпляр Client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	// Создаем аутентификатор для терминала.
	termAuth := trm.NewTerminal(cfg.PhoneNumber)

	// Настраиваем хранилище сессии.
	sessionStorage := &session.FileStorage{Path: cfg.SessionPath}

	// Создаем и настраиваем базовый клиент gotd.
	tgClient := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: sessionStorage,
	})

	c := &Client{
		id:         uuid.NewString(),
		botToken:   cfg.BotToken,
		tgRunner:   &prodRunner{Client: tgClient},
		authFlow:   auth.NewFlow(termAuth, auth.SendCodeOptions{}),
		isTerminal: func(fd int) bool { return term.IsTerminal(fd) },
		clock:      time.Now,
		log:        slog.Default(),
		runErr:     make(chan error, 1),
		ready:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ID возвращает уникальный идентификатор клиента.
func (c *Client) ID() string {
	return c.id
}

// Start запускает фоновый процесс клиента, включая аутентификацию.
// Должен быть вызван один раз перед использованием клиента.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			c.log.InfoContext(ctx, "Starting telegram client background runner", "client_id", c.id)
			err := c.tgRunner.Run(ctx, func(runCtx context.Context) error {
				// Проверяем статус аутентификации при запуске.
				if _, err := c.tgRunner.API().UsersGetUsers(runCtx, []tg.InputUserClass{&tg.InputUserSelf{}}); err != nil {
					// Если ошибка - это ожидаемое отсутствие сессии, логируем кратко.
					// Для всех остальных, непредвиденных ошибок, сохраняем полный вывод.
					if strings.Contains(err.Error(), "AUTH_KEY_UNREGISTERED") {
						c.log.WarnContext(runCtx, "Session check failed, signing in", "client_id", c.id, "reason", "AUTH_KEY_UNREGISTERED")
					} else {
						c.log.WarnContext(runCtx, "Session check failed, signing in", "client_id", c.id, "error", err)
					}
					if authErr := c.signIn(runCtx, err); authErr != nil {
						return authErr
					}
				}
				c.log.InfoContext(runCtx, "Telegram client authenticated and ready", "client_id", c.id)
				close(c.ready)

				// Держим соединение активным, пока не завершится контекст.
				<-runCtx.Done()
				return runCtx.Err()
			})

			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.ErrorContext(ctx, "Telegram client background runner exited with error", "client_id", c.id, "error", err)
			} else {
				c.log.InfoContext(ctx, "Telegram client background runner stopped", "client_id", c.id)
			}

			c.runErr <- err
			close(c.runErr)
		}()
	})
}

// signIn выполняет вход: по токену для бот-сессии, интерактивно для пользовательской.
func (c *Client) signIn(ctx context.Context, cause error) error {
	if c.botToken != "" {
		if _, err := c.tgRunner.Auth().Bot(ctx, c.botToken); err != nil {
			return fmt.Errorf("bot sign-in failed: %w", err)
		}
		c.log.InfoContext(ctx, "Bot sign-in successful, session saved", "client_id", c.id)
		return nil
	}

	if !c.isTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("session is invalid and cannot perform interactive auth in non-terminal: %w", cause)
	}
	if err := c.authFlow.Run(ctx, c.tgRunner.Auth()); err != nil {
		return fmt.Errorf("interactive auth failed: %w", err)
	}
	c.log.InfoContext(ctx, "Interactive auth successful, session saved", "client_id", c.id)
	return nil
}

// WaitReady блокируется до завершения аутентификации клиента.
// Возвращает ошибку, если фоновый процесс завершился раньше.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case err, ok := <-c.runErr:
		if ok && err != nil {
			return fmt.Errorf("telegram client failed to start: %w", err)
		}
		return errors.New("telegram client stopped before becoming ready")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health проверяет работоспособность клиента.
// Если активен FLOOD_WAIT, возвращает ошибку.
// В противном случае выполняет легковесный запрос к API.
func (c *Client) Health(ctx context.Context) error {
	if err := c.checkHealthStatus(); err != nil {
		return err
	}

	// Выполняем легковесный запрос для проверки связи.
	return c.do(ctx, func(ctx context.Context) error {
		_, err := c.tgRunner.API().HelpGetConfig(ctx)
		return err
	})
}

// ResolveChatByName находит чат по отображаемому имени, линейно сканируя
// диалоги сессии. Сравнение точное, первое совпадение выигрывает —
// при дублирующихся именах выбор неоднозначен.
func (c *Client) ResolveChatByName(ctx context.Context, name string) (domain.Chat, error) {
	iter, err := c.Dialogs(ctx)
	if err != nil {
		return domain.Chat{}, err
	}
	for iter.Next(ctx) {
		if chat := iter.Value(); chat.Title == name {
			return chat, nil
		}
	}
	if err := iter.Err(); err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{}, fmt.Errorf("%w: no dialog named %q", domain.ErrChatNotFound, name)
}

// Dialogs возвращает ленивый постраничный итератор по собственным диалогам сессии.
func (c *Client) Dialogs(ctx context.Context) (ports.DialogIterator, error) {
	return &dialogIterator{client: c, offsetPeer: &tg.InputPeerEmpty{}}, nil
}

// Members возвращает ленивый итератор по участникам чата.
// Итерация завершается, когда платформа сигнализирует конец списка,
// а не по фиксированному количеству.
func (c *Client) Members(ctx context.Context, chat domain.Chat) (ports.MemberIterator, error) {
	switch chat.Kind {
	case domain.ChatKindChannel:
		if chat.AccessHash == 0 {
			return nil, fmt.Errorf("%w: channel %d has no access hash for this session", domain.ErrChatUnaddressable, chat.ID)
		}
		return &memberIterator{client: c, chat: chat}, nil
	case domain.ChatKindGroup:
		return &memberIterator{client: c, chat: chat}, nil
	default:
		return nil, fmt.Errorf("%w: chat %d is not a group or channel", domain.ErrChatUnaddressable, chat.ID)
	}
}

// ResolveUsername разрешает публичный username в чат, адресуемый этой сессией.
func (c *Client) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	cleanUsername := strings.TrimPrefix(username, "@")
	c.log.DebugContext(ctx, "Executing API call: ContactsResolveUsername", "username", cleanUsername)

	var resolved *tg.ContactsResolvedPeer
	err := c.do(ctx, func(ctx context.Context) error {
		res, err := c.tgRunner.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: cleanUsername})
		if err == nil {
			resolved = res
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call ContactsResolveUsername failed", "username", cleanUsername, "error", err)
		}
		return domain.Chat{}, fmt.Errorf("%w: resolve username %q: %w", domain.ErrPlatform, cleanUsername, err)
	}

	switch peer := resolved.Peer.(type) {
	case *tg.PeerChannel:
		for _, ch := range resolved.Chats {
			if channel, ok := ch.(*tg.Channel); ok && channel.ID == peer.ChannelID {
				return chatFromChannel(channel), nil
			}
		}
	case *tg.PeerChat:
		for _, ch := range resolved.Chats {
			if group, ok := ch.(*tg.Chat); ok && group.ID == peer.ChatID {
				return chatFromGroup(group), nil
			}
		}
	case *tg.PeerUser:
		for _, u := range resolved.Users {
			if user, ok := u.(*tg.User); ok && user.ID == peer.UserID {
				return chatFromUser(user), nil
			}
		}
	}

	return domain.Chat{}, fmt.Errorf("%w: username %q resolved to no usable peer", domain.ErrChatNotFound, cleanUsername)
}

// SendMessage отправляет текстовое сообщение в чат.
func (c *Client) SendMessage(ctx context.Context, chat domain.Chat, text string) error {
	peer, err := inputPeer(chat)
	if err != nil {
		return err
	}

	c.log.DebugContext(ctx, "Executing API call: MessagesSendMessage", "chat_id", chat.ID)
	err = c.do(ctx, func(ctx context.Context) error {
		_, err := c.tgRunner.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  text,
			RandomID: rand.Int63(),
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrFloodWaitActive) {
			c.log.WarnContext(ctx, "API call MessagesSendMessage failed", "chat_id", chat.ID, "error", err)
		}
		return fmt.Errorf("%w: send message to chat %d: %w", domain.ErrPlatform, chat.ID, err)
	}
	return nil
}

// CanPostIn сообщает, имеет ли сессия право публиковать в чате.
// Права вычисляются из флагов, полученных этой же сессией при разрешении
// чата; для чата, разрешенного другой сессией, ответ не определен.
func (c *Client) CanPostIn(ctx context.Context, chat domain.Chat) (bool, error) {
	if chat.Kind == domain.ChatKindUser {
		return true, nil
	}
	return chat.CanPost, nil
}

// do выполняет операцию API с учетом состояния FLOOD_WAIT
// и отслеживает падение фонового процесса клиента.
func (c *Client) do(ctx context.Context, f func(ctx context.Context) error) error {
	if err := c.checkHealthStatus(); err != nil {
		c.log.WarnContext(ctx, "Client is unhealthy, aborting request", "error", err)
		return err
	}

	// Предполагается, что c.Start() был вызван, и клиент работает в фоновом режиме.
	opErr := f(ctx)

	if opErr != nil {
		// Обрабатываем специфичные ошибки, такие как FLOOD_WAIT.
		c.handleError(opErr)

		// Также проверяем, не отвалился ли сам клиент.
		select {
		case runErr, ok := <-c.runErr:
			if ok && runErr != nil {
				return fmt.Errorf("клиент telegram не запущен: %w (ошибка операции: %v)", runErr, opErr)
			}
		default:
			// Клиент все еще работает, возвращаем ошибку операции.
		}
	}

	return opErr
}

// checkHealthStatus проверяет, не находится ли клиент в состоянии FLOOD_WAIT.
func (c *Client) checkHealthStatus() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.unhealthyUntil.IsZero() && c.clock().Before(c.unhealthyUntil) {
		return fmt.Errorf("%w: active until %v", ErrFloodWaitActive, c.unhealthyUntil)
	}

	return nil
}

// handleError обрабатывает ошибки, ищет FLOOD_WAIT и обновляет состояние клиента.
func (c *Client) handleError(err error) {
	if waitDuration, ok := parseFloodWait(err); ok {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.unhealthyUntil = c.clock().Add(waitDuration)
		c.log.Warn("Client got FLOOD_WAIT, set unhealthy", "wait_duration", waitDuration, "until", c.unhealthyUntil)
	}
}

// parseFloodWait извлекает длительность ожидания из ошибки.
func parseFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	matches := floodWaitRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0, false
	}

	seconds, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// inputPeer строит адресный токен для запросов API из разрешенного чата.
func inputPeer(chat domain.Chat) (tg.InputPeerClass, error) {
	switch chat.Kind {
	case domain.ChatKindChannel:
		if chat.AccessHash == 0 {
			return nil, fmt.Errorf("%w: channel %d has no access hash for this session", domain.ErrChatUnaddressable, chat.ID)
		}
		return &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}, nil
	case domain.ChatKindGroup:
		return &tg.InputPeerChat{ChatID: chat.ID}, nil
	case domain.ChatKindUser:
		return &tg.InputPeerUser{UserID: chat.ID, AccessHash: chat.AccessHash}, nil
	default:
		return nil, fmt.Errorf("%w: unknown chat kind %q", domain.ErrChatUnaddressable, chat.Kind)
	}
}
