// auth.go — middleware аутентификации сессионных токенов.
// Извлекает Bearer token из Authorization, проверяет его кодеком
// (HS256, purpose=session) и помещает Principal в контекст запроса.
// Публичные endpoints (health, metrics, /redeem/*) — без аутентификации.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyPrincipal — ключ для Principal в контексте запроса.
const ContextKeyPrincipal contextKey = "auth_principal"

// SessionAuth — middleware аутентификации по сессионному токену.
type SessionAuth struct {
	codec  *token.Codec
	logger *slog.Logger
}

// NewSessionAuth создаёт middleware аутентификации.
func NewSessionAuth(codec *token.Codec, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		codec:  codec,
		logger: logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware для аутентификации.
// Извлекает Bearer token, проверяет подпись и purpose=session,
// помещает Principal (user_id, имя, роль) в контекст запроса.
// Download-токен на этих endpoints не принимается: у него другое
// назначение, и проверка purpose отклонит его как чужой.
func (a *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			value := parts[1]
			if value == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims, err := a.codec.Verify(value, token.PurposeSession)
			if err != nil {
				a.logger.Debug("Сессионный токен не прошёл проверку",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				switch {
				case errors.Is(err, token.ErrExpired):
					apierrors.Unauthorized(w, "Срок действия сессии истёк")
				default:
					apierrors.Unauthorized(w, "Невалидный сессионный токен")
				}
				return
			}

			if claims.UserID == "" {
				apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
				return
			}

			principal := &model.Principal{
				UserID: claims.UserID,
				Name:   claims.Name,
				Role:   model.Role(claims.Role),
			}
			if !principal.Role.Valid() {
				apierrors.Unauthorized(w, "Неизвестная роль в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole возвращает middleware, пропускающий только указанную роль.
// Аутентифицированный пользователь с другой ролью получает 403.
// Должен использоваться ПОСЛЕ SessionAuth.Middleware().
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				apierrors.Unauthorized(w, "Запрос не аутентифицирован")
				return
			}

			if principal.Role != role {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+string(role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext извлекает Principal из контекста запроса.
// Возвращает nil, если запрос не прошёл аутентификацию.
func PrincipalFromContext(ctx context.Context) *model.Principal {
	principal, _ := ctx.Value(ContextKeyPrincipal).(*model.Principal)
	return principal
}
