package domain

import "errors"

// Закрытая таксономия ошибок конвейера. Каждая ошибка фатальна для запуска:
// оркестратор логирует контекст и завершает работу при первой же из них.
var (
	// ErrChatNotFound — чат не найден ни по имени, ни при сканировании
	// списка диалогов бота.
	ErrChatNotFound = errors.New("chat not found")

	// ErrChatResolution — не удалось разрешить username чата для бот-сессии.
	ErrChatResolution = errors.New("chat username resolution failed")

	// ErrChatUnaddressable — ссылка на чат недействительна для вызывающей
	// сессии (access hash привязан к другой сессии).
	ErrChatUnaddressable = errors.New("chat is not addressable by this session")

	// ErrRecordRead — сохраненная таблица отсутствует или строка не прошла
	// валидацию схемы. Частичный список упоминаний не строится.
	ErrRecordRead = errors.New("member record read failed")

	// ErrPlatform — любая сетевая или протокольная ошибка Telegram,
	// включая отказы из-за ограничения частоты запросов.
	ErrPlatform = errors.New("telegram platform error")

	// ErrStorage — файл таблицы не может быть создан, записан или сброшен.
	ErrStorage = errors.New("roster storage error")
)
