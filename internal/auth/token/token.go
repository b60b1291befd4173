// Пакет token — кодек подписанных токенов SecureShare.
// Единый секрет процесса, подпись HS256. Каждый токен несёт поле
// purpose: session-токены, download-токены и токены подтверждения
// email различаются только назначением и набором claims.
//
// Кодек без состояния: Mint и Verify — чистые функции от входа,
// настенных часов и секрета процесса. Учёт погашения download-токенов
// ведёт ledger, кодек об этом ничего не знает.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Назначения токенов.
const (
	// PurposeSession — долгоживущий session-токен после входа
	PurposeSession = "session"
	// PurposeDownload — короткоживущий разовый токен скачивания
	PurposeDownload = "download"
	// PurposeEmailVerification — токен подтверждения email
	PurposeEmailVerification = "email_verification"
)

// Ошибки верификации. Любая ошибка означает полный отказ:
// частично доверенных claims не бывает.
var (
	// ErrMalformed — повреждённая структура или неверная подпись
	ErrMalformed = errors.New("токен повреждён или подпись неверна")
	// ErrExpired — срок действия токена истёк
	ErrExpired = errors.New("срок действия токена истёк")
	// ErrWrongPurpose — токен структурно валиден, но выдан для другой цели
	ErrWrongPurpose = errors.New("назначение токена не совпадает с ожидаемым")
)

// Claims — полезная нагрузка токена SecureShare.
// Набор заполненных полей зависит от назначения:
//   - session: UserID, Name, Role
//   - download: FileID, UserID
//   - email_verification: Email
type Claims struct {
	jwt.RegisteredClaims

	// Purpose — назначение токена, проверяется при Verify
	Purpose string `json:"purpose"`

	// UserID — идентификатор пользователя
	UserID string `json:"user_id,omitempty"`

	// Name — отображаемое имя пользователя (только session)
	Name string `json:"name,omitempty"`

	// Role — роль пользователя (только session)
	Role string `json:"role,omitempty"`

	// FileID — идентификатор файла (только download)
	FileID string `json:"file_id,omitempty"`

	// Email — адрес для подтверждения (только email_verification)
	Email string `json:"email,omitempty"`
}

// Codec — кодек подписанных токенов с секретом процесса.
type Codec struct {
	secret []byte
}

// New создаёт кодек. Секрет обязателен: пустой или усечённый секрет —
// ошибка конфигурации, а не повод подписывать чем попало.
func New(secret string) (*Codec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("секрет подписи токенов должен быть не короче 16 байт, получено %d", len(secret))
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Mint подписывает claims с заданным TTL. Проставляет issued_at и
// expires_at (= issued_at + ttl, фиксируется в момент выдачи и не
// продлевается). Возвращает компактную подписанную строку.
func (c *Codec) Mint(claims Claims, ttl time.Duration) (string, error) {
	if claims.Purpose == "" {
		return "", fmt.Errorf("назначение токена не задано")
	}

	now := time.Now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок действия токена, сверяет назначение.
// Закрывается при любом сомнении: повреждённая структура и неверная
// подпись дают ErrMalformed, истёкший срок — ErrExpired, несовпадение
// назначения — ErrWrongPurpose. Claims возвращаются только при
// полностью успешной проверке.
func (c *Codec) Verify(value, purpose string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if !t.Valid {
		return nil, ErrMalformed
	}

	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}

	return claims, nil
}
