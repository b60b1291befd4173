// Пакет service — бизнес-логика SecureShare.
// upload.go — сервис загрузки файлов.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/domain/model"
	"github.com/bigkaa/secureshare/internal/storage/attr"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — оригинальное имя файла
	OriginalName string
	// ContentType — MIME-тип из заголовка multipart part
	ContentType string
	// Size — заявленный размер файла (Content-Length части), -1 если неизвестен
	Size int64
	// UploadedBy — идентификатор пользователя из session-токена
	UploadedBy string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg    *config.Config
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	store *filestore.FileStore,
	reg *registry.Registry,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:    cfg,
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет файл и вносит его в каталог.
//
// Поток:
//  1. Валидация имени, заявленного размера и MIME-типа
//  2. Save (streaming + SHA-256, с жёстким лимитом размера)
//  3. Сверка типа по содержимому, если заголовок пуст
//  4. registry.Register (выдача file_id)
//  5. Запись сайдкара .attr.json
//
// При ошибке после Save — откат: удаление файла, сайдкара и записи каталога.
func (s *UploadService) Upload(params UploadParams) (*model.FileRecord, *UploadError) {
	// 1. Валидация входа
	name := strings.TrimSpace(params.OriginalName)
	if name == "" {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Имя файла не задано",
		}
	}
	if strings.ContainsAny(name, "/\\") {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Имя файла не должно содержать разделители пути",
		}
	}

	if params.Size > s.cfg.MaxFileSize {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	contentType := cleanContentType(params.ContentType)
	if contentType != "" && !s.cfg.TypeAllowed(contentType) {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 415,
			Code:       apierrors.CodeUnsupportedMediaType,
			Message:    fmt.Sprintf("Тип %s не входит в список разрешённых", contentType),
		}
	}

	// 2. Сохраняем на диск. LimitReader на байт больше лимита:
	// заявленному размеру здесь уже не верим.
	limited := io.LimitReader(params.Reader, s.cfg.MaxFileSize+1)
	saved, err := s.store.Save(limited, name)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeStorageUnavailable,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	rollbackSaved := func() {
		_ = s.store.Delete(saved.StoragePath)
		_ = attr.Delete(attr.AttrFilePath(saved.FullPath))
	}

	if saved.Size > s.cfg.MaxFileSize {
		rollbackSaved()
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла превышает максимум %d байт", s.cfg.MaxFileSize),
		}
	}

	// 3. Если клиент не заявил тип — определяем по содержимому.
	if contentType == "" {
		detected, err := mimetype.DetectFile(saved.FullPath)
		if err != nil {
			rollbackSaved()
			s.logger.Error("Ошибка определения типа файла",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
			middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
			return nil, &UploadError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Не удалось определить тип файла",
			}
		}
		contentType = cleanContentType(detected.String())
		if !s.cfg.TypeAllowed(contentType) {
			rollbackSaved()
			middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
			return nil, &UploadError{
				StatusCode: 415,
				Code:       apierrors.CodeUnsupportedMediaType,
				Message:    fmt.Sprintf("Тип %s не входит в список разрешённых", contentType),
			}
		}
	}

	// 4. Вносим в каталог
	rec := &model.FileRecord{
		OriginalName: name,
		StoragePath:  saved.StoragePath,
		ContentType:  contentType,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		UploadedBy:   params.UploadedBy,
		UploadedAt:   time.Now().UTC(),
	}
	fileID, err := s.reg.Register(rec)
	if err != nil {
		rollbackSaved()
		s.logger.Error("Ошибка регистрации файла в каталоге",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка регистрации файла",
		}
	}
	rec.FileID = fileID

	// 5. Пишем сайдкар: после рестарта каталог строится из него
	if err := attr.Write(attr.AttrFilePath(saved.FullPath), rec); err != nil {
		s.reg.Remove(fileID)
		rollbackSaved()
		s.logger.Error("Ошибка записи attr.json",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeStorageUnavailable,
			Message:    "Ошибка записи метаданных",
		}
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.FilesTotal.Set(float64(s.reg.Count()))

	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("filename", name),
		slog.String("content_type", contentType),
		slog.Int64("size", rec.Size),
		slog.String("checksum", rec.Checksum),
		slog.String("uploaded_by", params.UploadedBy),
	)

	return rec, nil
}

// cleanContentType убирает параметры MIME-типа (charset и т.д.).
func cleanContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}
