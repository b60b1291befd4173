// Пакет model — доменные модели SecureShare.
// FileRecord — единая структура метаданных файла, используется
// как in-memory представление и как формат sidecar .attr.json на диске.
package model

import (
	"time"
)

// FileRecord — запись каталога файлов. Создаётся один раз при загрузке
// и далее не изменяется. Поле StoragePath не входит в API-ответы,
// но сохраняется в .attr.json для привязки метаданных к физическому
// файлу на диске.
type FileRecord struct {
	// FileID — уникальный идентификатор файла (UUID v4).
	// Единственный идентификатор, который видят потребители.
	FileID string `json:"file_id"`

	// OriginalName — оригинальное имя файла при загрузке
	OriginalName string `json:"original_name"`

	// StoragePath — имя файла на диске (относительно SS_DATA_DIR).
	// Не возвращается в API, используется только внутри сервиса.
	StoragePath string `json:"storage_path"`

	// ContentType — MIME-тип файла
	ContentType string `json:"content_type"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// Checksum — SHA-256 хэш содержимого файла
	Checksum string `json:"checksum"`

	// UploadedBy — идентификатор загрузившего пользователя
	UploadedBy string `json:"uploaded_by"`

	// UploadedAt — дата и время загрузки (UTC)
	UploadedAt time.Time `json:"uploaded_at"`
}
