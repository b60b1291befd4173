// files.go — HTTP handlers файловых операций: загрузка и каталог.
package handlers

import (
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/service"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

// multipartMemoryLimit — буфер разбора multipart form в памяти,
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploads *service.UploadService
	reg     *registry.Registry
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploads *service.UploadService, reg *registry.Registry) *FilesHandler {
	return &FilesHandler{
		uploads: uploads,
		reg:     reg,
	}
}

// Upload обрабатывает POST /api/v1/files (роль uploader).
// Multipart form: file (обязательно).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	rec, uerr := h.uploads.Upload(service.UploadParams{
		Reader:       file,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		UploadedBy:   principal.UserID,
	})
	if uerr != nil {
		apierrors.WriteError(w, uerr.StatusCode, uerr.Code, uerr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, toFileInfo(rec))
}

// List обрабатывает GET /api/v1/files (роль consumer).
// Возвращает каталог, новые файлы первыми.
func (h *FilesHandler) List(w http.ResponseWriter, _ *http.Request) {
	records := h.reg.List()

	items := make([]fileInfo, 0, len(records))
	for _, rec := range records {
		items = append(items, toFileInfo(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
