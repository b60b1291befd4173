// redeem.go — HTTP handlers выдачи и погашения download-токенов.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/service"
)

// RedeemHandler — обработчик endpoints download-токенов.
type RedeemHandler struct {
	grants *service.GrantService
}

// NewRedeemHandler создаёт обработчик download-токенов.
func NewRedeemHandler(grants *service.GrantService) *RedeemHandler {
	return &RedeemHandler{grants: grants}
}

// Issue обрабатывает POST /api/v1/files/{fileID}/issue (роль consumer).
// Выдаёт разовую ссылку скачивания.
func (h *RedeemHandler) Issue(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		apierrors.ValidationError(w, "Идентификатор файла обязателен")
		return
	}

	principal := middleware.PrincipalFromContext(r.Context())

	result, gerr := h.grants.Issue(fileID, principal.UserID)
	if gerr != nil {
		apierrors.WriteError(w, gerr.StatusCode, gerr.Code, gerr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"redemption_url":     result.RedemptionURL,
		"expires_in_minutes": result.ExpiresInMinutes,
		"file_info":          toFileInfo(result.File),
	})
}

// Info обрабатывает GET /redeem/info/{token}.
// Возвращает сведения о файле и сроке действия БЕЗ погашения токена.
// Endpoint публичный: токен сам является предъявительским правом.
func (h *RedeemHandler) Info(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "token")

	info, gerr := h.grants.Info(value)
	if gerr != nil {
		apierrors.WriteError(w, gerr.StatusCode, gerr.Code, gerr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":         info.File.OriginalName,
		"size":         info.File.Size,
		"content_type": info.File.ContentType,
		"expires_at":   info.ExpiresAt.UTC().Format(time.RFC3339),
		"valid":        true,
	})
}

// Redeem обрабатывает GET /redeem/{token}.
// Гасит токен и отдаёт файл. Endpoint публичный.
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "token")

	if gerr := h.grants.Redeem(w, r, value); gerr != nil {
		apierrors.WriteError(w, gerr.StatusCode, gerr.Code, gerr.Message)
	}
}
