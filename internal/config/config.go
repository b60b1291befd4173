// Пакет config — загрузка и валидация конфигурации SecureShare
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Офисные форматы, разрешённые к загрузке по умолчанию.
const defaultAllowedTypes = "application/vnd.openxmlformats-officedocument.presentationml.presentation," +
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document," +
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Config содержит все параметры конфигурации SecureShare.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории хранения файлов
	DataDir string
	// Базовый URL сервиса, из него строятся ссылки скачивания
	BaseURL string
	// Секрет подписи токенов (HS256), минимум 16 символов
	JWTSecret string
	// Срок действия сессионного токена
	SessionTTL time.Duration
	// Срок действия download-токена
	DownloadTTL time.Duration
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Разрешённые MIME-типы загружаемых файлов
	AllowedTypes []string
	// Интервал фонового sweep'а реестра download-токенов
	SweepInterval time.Duration
	// Email стартового пользователя-оператора
	UploaderEmail string
	// Пароль стартового пользователя-оператора
	UploaderPassword string
	// Путь к TLS сертификату (опционально, пара с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// SS_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("SS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SS_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("SS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// SS_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("SS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// SS_BASE_URL — базовый URL для ссылок скачивания
	// (по умолчанию строится из порта)
	cfg.BaseURL = strings.TrimRight(
		getEnvDefault("SS_BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	// SS_JWT_SECRET — обязательный, минимум 16 символов
	cfg.JWTSecret, err = getEnvRequired("SS_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("SS_JWT_SECRET: длина секрета %d, требуется минимум 16 символов", len(cfg.JWTSecret))
	}

	// SS_SESSION_TTL — срок действия сессии (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDuration("SS_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SS_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SS_SESSION_TTL: значение должно быть положительным")
	}

	// SS_DOWNLOAD_TTL — срок действия download-токена (по умолчанию 15m)
	cfg.DownloadTTL, err = getEnvDuration("SS_DOWNLOAD_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SS_DOWNLOAD_TTL: %w", err)
	}
	if cfg.DownloadTTL <= 0 {
		return nil, fmt.Errorf("SS_DOWNLOAD_TTL: значение должно быть положительным")
	}

	// SS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 50 MB)
	maxFileSize, err := getEnvInt64("SS_MAX_FILE_SIZE", 52428800)
	if err != nil {
		return nil, fmt.Errorf("SS_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("SS_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// SS_ALLOWED_TYPES — список MIME-типов через запятую
	// (по умолчанию офисные форматы pptx/docx/xlsx)
	for _, t := range strings.Split(getEnvDefault("SS_ALLOWED_TYPES", defaultAllowedTypes), ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			cfg.AllowedTypes = append(cfg.AllowedTypes, t)
		}
	}
	if len(cfg.AllowedTypes) == 0 {
		return nil, fmt.Errorf("SS_ALLOWED_TYPES: список разрешённых типов пуст")
	}

	// SS_SWEEP_INTERVAL — интервал фонового sweep'а (по умолчанию 5m)
	cfg.SweepInterval, err = getEnvDuration("SS_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SS_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SS_SWEEP_INTERVAL: значение должно быть положительным")
	}

	// SS_UPLOADER_EMAIL — email стартового оператора (по умолчанию ops@secureshare.local)
	cfg.UploaderEmail = getEnvDefault("SS_UPLOADER_EMAIL", "ops@secureshare.local")

	// SS_UPLOADER_PASSWORD — обязательный: без оператора некому загружать файлы
	cfg.UploaderPassword, err = getEnvRequired("SS_UPLOADER_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SS_TLS_CERT / SS_TLS_KEY — опциональная пара
	cfg.TLSCert = getEnvDefault("SS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("SS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("SS_TLS_CERT и SS_TLS_KEY задаются только парой")
	}

	// SS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SS_LOG_LEVEL: %w", err)
	}

	// SS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// SS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// TypeAllowed проверяет, входит ли MIME-тип в список разрешённых.
func (c *Config) TypeAllowed(contentType string) bool {
	for _, t := range c.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// TLSEnabled сообщает, настроен ли сервер на HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 15m, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
