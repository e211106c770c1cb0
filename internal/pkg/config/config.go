// Package config предоставляет управление конфигурацией приложения
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Telegram содержит учетные данные пользовательской сессии.
type Telegram struct {
	APIID       int    `json:"api_id" yaml:"api_id"`
	APIHash     string `json:"api_hash" yaml:"api_hash"`
	PhoneNumber string `json:"phone_number" yaml:"phone_number"`
	SessionFile string `json:"session_file" yaml:"session_file"`
}

// Bot содержит учетные данные бот-сессии.
// Бот аутентифицируется токеном и не требует интерактивного входа.
type Bot struct {
	Token       string `json:"token" yaml:"token"`
	SessionFile string `json:"session_file" yaml:"session_file"`
}

// Mention содержит настройки конвейера упоминаний.
type Mention struct {
	// ChatName — отображаемое имя целевого чата.
	ChatName string `json:"chat_name" yaml:"chat_name"`
	// SelfMention — упоминание самого бота, исключаемое из списка.
	SelfMention string `json:"self_mention" yaml:"self_mention"`
	// RosterDir — каталог с CSV-таблицами участников.
	RosterDir string `json:"roster_dir" yaml:"roster_dir"`
	// FetchDelayMS — пауза между получением участников, миллисекунды.
	FetchDelayMS int `json:"fetch_delay_ms" yaml:"fetch_delay_ms"`
}

// FetchDelay возвращает паузу между получением участников.
func (m Mention) FetchDelay() time.Duration {
	return time.Duration(m.FetchDelayMS) * time.Millisecond
}

// Server содержит конфигурацию HTTP-сервера.
type Server struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// Logging содержит конфигурацию логирования.
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Config содержит конфигурацию приложения.
type Config struct {
	Telegram Telegram `json:"telegram" yaml:"telegram"`
	Bot      Bot      `json:"bot" yaml:"bot"`
	Mention  Mention  `json:"mention" yaml:"mention"`
	Server   Server   `json:"server" yaml:"server"`
	Logging  Logging  `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию приложения из переменных окружения, .env файла или config.yml
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла, если он существует
	if err := godotenv.Load(); err != nil {
		// Если .env файла не существует, это нормально, мы будем полагаться на переменные окружения или config.yml
	}

	// Попытка загрузки из config.yml сначала
	cfg, err := loadFromYAML("config.yml")
	if err != nil {
		// Если загрузка YAML не удалась, используем переменные окружения
		cfg, err = loadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("не удалось загрузить конфигурацию из env: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла
func loadFromYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return &cfg, nil
}

// loadFromEnv загружает конфигурацию из переменных окружения.
// Имена переменных совместимы со старым .env форматом.
func loadFromEnv() (*Config, error) {
	apiIDStr := getEnv("API_ID", "")
	apiHash := getEnv("API_HASH", "")
	phoneNumber := getEnv("PHONE_NUMBER", "")
	botToken := getEnv("BOT_TOKEN", "")
	chatName := getEnv("CHAT_NAME", "")
	selfMention := getEnv("BOT_MENTION", "")

	if apiIDStr == "" || apiHash == "" {
		return nil, fmt.Errorf("API_ID и API_HASH должны быть установлены в переменных окружения")
	}

	apiID, err := strconv.Atoi(apiIDStr)
	if err != nil {
		return nil, fmt.Errorf("недопустимый API_ID: %w", err)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", strconv.Itoa(DefaultServerPort)))
	if err != nil {
		return nil, fmt.Errorf("недопустимый SERVER_PORT: %w", err)
	}

	fetchDelay, err := strconv.Atoi(getEnv("FETCH_DELAY_MS", strconv.Itoa(DefaultFetchDelayMS)))
	if err != nil {
		return nil, fmt.Errorf("недопустимый FETCH_DELAY_MS: %w", err)
	}

	return &Config{
		Telegram: Telegram{
			APIID:       apiID,
			APIHash:     apiHash,
			PhoneNumber: phoneNumber,
			SessionFile: getEnv("SESSION_FILE", DefaultSessionFile),
		},
		Bot: Bot{
			Token:       botToken,
			SessionFile: getEnv("BOT_SESSION_FILE", DefaultBotSessionFile),
		},
		Mention: Mention{
			ChatName:     chatName,
			SelfMention:  selfMention,
			RosterDir:    getEnv("ROSTER_DIR", DefaultRosterDir),
			FetchDelayMS: fetchDelay,
		},
		Server: Server{
			Host: getEnv("SERVER_HOST", DefaultServerHost),
			Port: port,
		},
	}, nil
}

// applyDefaults заполняет незаданные поля значениями по умолчанию.
func (c *Config) applyDefaults() {
	if c.Telegram.SessionFile == "" {
		c.Telegram.SessionFile = DefaultSessionFile
	}
	if c.Bot.SessionFile == "" {
		c.Bot.SessionFile = DefaultBotSessionFile
	}
	if c.Mention.RosterDir == "" {
		c.Mention.RosterDir = DefaultRosterDir
	}
	if c.Mention.FetchDelayMS == 0 {
		c.Mention.FetchDelayMS = DefaultFetchDelayMS
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ShutdownTimeout возвращает таймаут корректного завершения сервера.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Telegram.APIID <= 0 {
		return fmt.Errorf("telegram.api_id должно быть положительным целым числом")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash не может быть пустым")
	}
	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token не может быть пустым")
	}
	if c.Telegram.SessionFile == c.Bot.SessionFile {
		return fmt.Errorf("telegram.session_file и bot.session_file должны различаться: сессии не разделяемы")
	}
	if c.Mention.ChatName == "" {
		return fmt.Errorf("mention.chat_name не может быть пустым")
	}
	if c.Mention.FetchDelayMS < 0 {
		return fmt.Errorf("mention.fetch_delay_ms должно быть неотрицательным")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format должен быть одним из: json, text")
	}

	return nil
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
