// users.go — потокобезопасное in-memory хранилище пользователей.
// Uploader-аккаунт создаётся из конфигурации при старте (SeedUploader),
// consumer-аккаунты регистрируются через signup и активируются
// подтверждением email.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/secureshare/internal/domain/model"
)

// Ошибки хранилища пользователей.
var (
	// ErrUserExists — пользователь с таким email уже зарегистрирован
	ErrUserExists = errors.New("пользователь с таким email уже существует")
	// ErrUserNotFound — пользователь не найден
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrInvalidCredentials — неверная пара email/пароль
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrNotVerified — email не подтверждён
	ErrNotVerified = errors.New("email не подтверждён")
	// ErrAlreadyVerified — email уже был подтверждён ранее
	ErrAlreadyVerified = errors.New("email уже подтверждён")
)

// UserStore — in-memory хранилище пользователей.
// Read-mostly: запись только при signup/verify, RWMutex достаточно.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]*model.User // email → user
	logger *slog.Logger
}

// NewUserStore создаёт пустое хранилище пользователей.
func NewUserStore(logger *slog.Logger) *UserStore {
	return &UserStore{
		users:  make(map[string]*model.User),
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// SeedUploader создаёт подтверждённый uploader-аккаунт из конфигурации.
// Вызывается один раз при старте процесса.
func (s *UserStore) SeedUploader(username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("хэширование пароля uploader: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         username,
		Email:        normalizeEmail(username),
		PasswordHash: hash,
		Role:         model.RoleUploader,
		Verified:     true,
		CreatedAt:    now,
		VerifiedAt:   &now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return ErrUserExists
	}
	s.users[user.Email] = user

	s.logger.Info("Uploader-аккаунт создан",
		slog.String("user_id", user.ID),
		slog.String("name", username),
	)
	return nil
}

// Register создаёт нового consumer-пользователя с неподтверждённым email.
func (s *UserStore) Register(name, email, password string) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         model.RoleConsumer,
		Verified:     false,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return nil, ErrUserExists
	}
	s.users[user.Email] = user

	copied := *user
	return &copied, nil
}

// Authenticate проверяет пару email/пароль и возвращает пользователя.
// Несуществующий пользователь и неверный пароль неразличимы для
// вызывающего: обе ситуации дают ErrInvalidCredentials.
// Неподтверждённый consumer получает ErrNotVerified.
func (s *UserStore) Authenticate(email, password string) (*model.User, error) {
	// Копия снимается под RLock: Verify конкурентно мутирует запись.
	s.mu.RLock()
	user, ok := s.users[normalizeEmail(email)]
	var copied model.User
	if ok {
		copied = *user
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}

	match, err := ComparePassword(password, copied.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("сравнение пароля: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if !copied.Verified {
		return nil, ErrNotVerified
	}

	return &copied, nil
}

// Verify помечает email пользователя подтверждённым.
// Повторное подтверждение — ошибка ErrAlreadyVerified.
func (s *UserStore) Verify(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[normalizeEmail(email)]
	if !ok {
		return ErrUserNotFound
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	now := time.Now().UTC()
	user.Verified = true
	user.VerifiedAt = &now

	s.logger.Info("Email подтверждён",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return nil
}

// Get возвращает пользователя по email. Возвращает копию.
func (s *UserStore) Get(email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// Count возвращает количество зарегистрированных пользователей.
func (s *UserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// normalizeEmail приводит email к каноничному виду для использования
// в качестве ключа.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
