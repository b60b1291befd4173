// account.go — сервис учётных записей: вход, регистрация,
// подтверждение email.
package service

import (
	"errors"
	"fmt"
	"log/slog"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/auth"
	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/domain/model"
)

// AccountError — ошибка с HTTP-кодом.
type AccountError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Mailer отправляет письма подтверждения.
type Mailer interface {
	SendVerification(email, link string) error
}

// LogMailer — заглушка почтовой отправки: ссылка подтверждения
// пишется в лог. Реальный SMTP-транспорт подключается вместо неё.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer создаёт лог-отправитель.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With(slog.String("component", "mailer"))}
}

// SendVerification пишет ссылку подтверждения в лог.
func (m *LogMailer) SendVerification(email, link string) error {
	m.logger.Info("Письмо подтверждения email",
		slog.String("to", email),
		slog.String("link", link),
	)
	return nil
}

// AccountService — вход, регистрация и подтверждение email.
type AccountService struct {
	cfg    *config.Config
	users  *auth.UserStore
	codec  *token.Codec
	mailer Mailer
	logger *slog.Logger
}

// NewAccountService создаёт сервис учётных записей.
func NewAccountService(
	cfg *config.Config,
	users *auth.UserStore,
	codec *token.Codec,
	mailer Mailer,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		cfg:    cfg,
		users:  users,
		codec:  codec,
		mailer: mailer,
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// Login проверяет учётные данные и выдаёт session-токен.
// Неверный email и неверный пароль наружу неразличимы.
func (s *AccountService) Login(email, password string) (string, *model.User, *AccountError) {
	user, err := s.users.Authenticate(email, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return "", nil, &AccountError{
				StatusCode: 401,
				Code:       apierrors.CodeUnauthorized,
				Message:    "Неверный email или пароль",
			}
		case errors.Is(err, auth.ErrNotVerified):
			return "", nil, &AccountError{
				StatusCode: 403,
				Code:       apierrors.CodeForbidden,
				Message:    "Email не подтверждён",
			}
		default:
			s.logger.Error("Ошибка аутентификации", slog.String("error", err.Error()))
			return "", nil, &AccountError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Внутренняя ошибка",
			}
		}
	}

	signed, err := s.codec.Mint(token.Claims{
		Purpose: token.PurposeSession,
		UserID:  user.ID,
		Name:    user.Name,
		Role:    string(user.Role),
	}, s.cfg.SessionTTL)
	if err != nil {
		s.logger.Error("Ошибка чеканки session-токена", slog.String("error", err.Error()))
		return "", nil, &AccountError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}

	s.logger.Info("Пользователь вошёл",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return signed, user, nil
}

// Signup регистрирует consumer-аккаунт и отправляет письмо
// подтверждения. До подтверждения вход закрыт.
func (s *AccountService) Signup(name, email, password string) (*model.User, *AccountError) {
	if name == "" || email == "" || len(password) < 8 {
		return nil, &AccountError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Требуются имя, email и пароль не короче 8 символов",
		}
	}

	user, err := s.users.Register(name, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return nil, &AccountError{
				StatusCode: 400,
				Code:       apierrors.CodeValidationError,
				Message:    "Пользователь с таким email уже зарегистрирован",
			}
		}
		s.logger.Error("Ошибка регистрации", slog.String("error", err.Error()))
		return nil, &AccountError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}

	verification, err := s.codec.Mint(token.Claims{
		Purpose: token.PurposeEmailVerification,
		Email:   user.Email,
	}, s.cfg.SessionTTL)
	if err != nil {
		s.logger.Error("Ошибка чеканки токена подтверждения", slog.String("error", err.Error()))
		return nil, &AccountError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}

	link := fmt.Sprintf("%s/auth/verify-email?token=%s", s.cfg.BaseURL, verification)
	if err := s.mailer.SendVerification(user.Email, link); err != nil {
		s.logger.Error("Ошибка отправки письма подтверждения",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// VerifyEmail подтверждает email по токену из письма.
func (s *AccountService) VerifyEmail(value string) *AccountError {
	claims, err := s.codec.Verify(value, token.PurposeEmailVerification)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return &AccountError{
				StatusCode: 400,
				Code:       apierrors.CodeTokenExpired,
				Message:    "Срок действия токена подтверждения истёк",
			}
		default:
			return &AccountError{
				StatusCode: 400,
				Code:       apierrors.CodeValidationError,
				Message:    "Невалидный токен подтверждения",
			}
		}
	}

	if err := s.users.Verify(claims.Email); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			return &AccountError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    "Пользователь не найден",
			}
		case errors.Is(err, auth.ErrAlreadyVerified):
			// Повторное подтверждение безвредно
			return nil
		default:
			s.logger.Error("Ошибка подтверждения email", slog.String("error", err.Error()))
			return &AccountError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Внутренняя ошибка",
			}
		}
	}

	s.logger.Info("Email подтверждён", slog.String("email", claims.Email))
	return nil
}
