// handler.go — общие вспомогательные типы и функции handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bigkaa/secureshare/internal/domain/model"
)

// fileInfo — представление записи каталога в API-ответах.
// Поле storage_path наружу не отдаётся.
type fileInfo struct {
	FileID      string    `json:"file_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// toFileInfo преобразует запись каталога в API-формат.
func toFileInfo(rec *model.FileRecord) fileInfo {
	return fileInfo{
		FileID:      rec.FileID,
		Name:        rec.OriginalName,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Checksum:    rec.Checksum,
		UploadedBy:  rec.UploadedBy,
		UploadedAt:  rec.UploadedAt,
	}
}

// writeJSON записывает JSON-ответ с указанным статус-кодом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
