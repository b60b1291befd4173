// grant.go — сервис выдачи и погашения download-токенов.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/domain/model"
	"github.com/bigkaa/secureshare/internal/ledger"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
)

// GrantError — ошибка с HTTP-кодом.
type GrantError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IssueResult — результат выдачи download-токена.
type IssueResult struct {
	// RedemptionURL — полная ссылка скачивания
	RedemptionURL string
	// ExpiresInMinutes — срок действия ссылки в минутах
	ExpiresInMinutes int
	// File — запись каталога, для которой выдан токен
	File *model.FileRecord
}

// GrantInfo — сведения о токене без его погашения.
type GrantInfo struct {
	// File — запись каталога
	File *model.FileRecord
	// ExpiresAt — срок действия токена
	ExpiresAt time.Time
}

// GrantService — сервис работы с download-токенами.
type GrantService struct {
	cfg    *config.Config
	led    *ledger.Ledger
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewGrantService создаёт сервис download-токенов.
func NewGrantService(
	cfg *config.Config,
	led *ledger.Ledger,
	store *filestore.FileStore,
	logger *slog.Logger,
) *GrantService {
	return &GrantService{
		cfg:    cfg,
		led:    led,
		store:  store,
		logger: logger.With(slog.String("component", "grant_service")),
	}
}

// Issue выдаёт download-токен на файл и строит ссылку скачивания.
func (s *GrantService) Issue(fileID, requesterID string) (*IssueResult, *GrantError) {
	signed, entry, file, err := s.led.Issue(fileID, requesterID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, &GrantError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Файл %s не найден", fileID),
			}
		}
		s.logger.Error("Ошибка выдачи download-токена",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &GrantError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось выдать токен скачивания",
		}
	}

	return &IssueResult{
		RedemptionURL:    fmt.Sprintf("%s/redeem/%s", s.cfg.BaseURL, signed),
		ExpiresInMinutes: int(time.Until(entry.ExpiresAt).Round(time.Minute) / time.Minute),
		File:             file,
	}, nil
}

// Info возвращает сведения о токене без погашения.
func (s *GrantService) Info(value string) (*GrantInfo, *GrantError) {
	rec, entry, err := s.led.Inspect(value)
	if err != nil {
		return nil, grantError(err)
	}
	return &GrantInfo{File: rec, ExpiresAt: entry.ExpiresAt}, nil
}

// Redeem гасит токен и отдаёт файл клиенту одним потоком.
//
// Токен остаётся погашенным и при сбое чтения с диска: ссылка разовая,
// неудачная попытка — тоже попытка. Range-запросы не поддерживаются,
// докачка потребовала бы повторного предъявления уже погашенного токена.
func (s *GrantService) Redeem(w http.ResponseWriter, r *http.Request, value string) *GrantError {
	rec, err := s.led.Redeem(value)
	if err != nil {
		return grantError(err)
	}

	file, err := s.store.Open(rec.StoragePath)
	if err != nil {
		s.logger.Error("Файл каталога отсутствует на диске",
			slog.String("file_id", rec.FileID),
			slog.String("storage_path", rec.StoragePath),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("redeem", "error").Inc()
		return &GrantError{
			StatusCode: 500,
			Code:       apierrors.CodeStorageUnavailable,
			Message:    "Файл недоступен в хранилище",
		}
	}
	defer file.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.Size))

	if _, err := io.Copy(w, file); err != nil {
		// Заголовки уже ушли, статус не изменить. Логируем и всё.
		s.logger.Warn("Передача файла оборвана",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("redeem", "aborted").Inc()
		return nil
	}

	middleware.OperationsTotal.WithLabelValues("redeem", "success").Inc()

	s.logger.Info("Файл отдан по download-токену",
		slog.String("file_id", rec.FileID),
		slog.String("filename", rec.OriginalName),
		slog.Int64("size", rec.Size),
	)

	return nil
}

// grantError сводит ошибки кодека и реестра к HTTP-ответам.
// Повреждённый токен и токен чужого назначения — 400, отсутствующая
// запись (или исчезнувший файл) — 404, погашенный и истёкший — 400
// со своими кодами.
func grantError(err error) *GrantError {
	switch {
	case errors.Is(err, token.ErrMalformed):
		return &GrantError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Токен повреждён или подпись неверна",
		}
	case errors.Is(err, token.ErrWrongPurpose):
		return &GrantError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Токен выдан для другой цели",
		}
	case errors.Is(err, token.ErrExpired), errors.Is(err, ledger.ErrExpired):
		return &GrantError{
			StatusCode: 400,
			Code:       apierrors.CodeTokenExpired,
			Message:    "Срок действия токена истёк",
		}
	case errors.Is(err, ledger.ErrAlreadyConsumed):
		return &GrantError{
			StatusCode: 400,
			Code:       apierrors.CodeTokenConsumed,
			Message:    "Токен уже был использован",
		}
	case errors.Is(err, ledger.ErrNotFound):
		return &GrantError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Токен не найден",
		}
	default:
		return &GrantError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}
}
