// user.go — пользователи и роли SecureShare.
package model

import (
	"time"
)

// Role — роль пользователя.
type Role string

const (
	// RoleUploader — размещает файлы, не выдаёт и не гасит download-токены
	RoleUploader Role = "uploader"
	// RoleConsumer — видит каталог, выдаёт и гасит download-токены
	RoleConsumer Role = "consumer"
)

// Valid проверяет, что роль входит в число известных.
func (r Role) Valid() bool {
	return r == RoleUploader || r == RoleConsumer
}

// User — учётная запись пользователя.
// Uploader-аккаунт создаётся из конфигурации при старте,
// consumer-аккаунты — через signup с подтверждением email.
type User struct {
	// ID — уникальный идентификатор (UUID v4)
	ID string `json:"id"`

	// Name — отображаемое имя
	Name string `json:"name"`

	// Email — адрес для входа consumer'а. Для uploader'а совпадает
	// с login-именем из конфигурации.
	Email string `json:"email"`

	// PasswordHash — argon2id-хэш пароля
	PasswordHash string `json:"-"`

	// Role — роль пользователя
	Role Role `json:"role"`

	// Verified — email подтверждён. Uploader-аккаунты создаются
	// подтверждёнными.
	Verified bool `json:"verified"`

	// CreatedAt — момент создания (UTC)
	CreatedAt time.Time `json:"created_at"`

	// VerifiedAt — момент подтверждения email, nil пока не подтверждён
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Principal — аутентифицированный субъект запроса, извлекается
// из session-токена. Неизменяем в течение обработки запроса.
type Principal struct {
	// UserID — идентификатор пользователя
	UserID string
	// Name — отображаемое имя
	Name string
	// Role — роль из токена
	Role Role
}
