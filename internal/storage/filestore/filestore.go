// Пакет filestore — операции с физическими файлами на диске.
// Streaming-запись с подсчётом SHA-256 на лету и атомарной публикацией:
// temp файл → запись → fsync → rename.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (SS_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — относительный путь файла в dataDir
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый FileStore. Создаёт директорию данных,
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Save записывает данные из reader на диск с подсчётом SHA-256 на лету.
// Имя файла на диске: {timestamp}_{uuid8}{ext} — оригинальное имя в путь
// не попадает и наружу не отдаётся.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader, originalName string) (*SaveResult, error) {
	storageName := generateStorageName(originalName)
	fullPath := filepath.Join(fs.dataDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storageName,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения и возвращает *os.File.
// storagePath — относительный путь файла в dataDir.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storagePath string) (*os.File, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}

	return f, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
func (fs *FileStore) FullPath(storagePath string) string {
	return filepath.Join(fs.dataDir, storagePath)
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(storagePath string) bool {
	_, err := os.Stat(filepath.Join(fs.dataDir, storagePath))
	return err == nil
}

// Delete удаляет файл с диска. Возвращает nil если файл уже не существует.
func (fs *FileStore) Delete(storagePath string) error {
	err := os.Remove(filepath.Join(fs.dataDir, storagePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// FileSize возвращает размер файла на диске.
func (fs *FileStore) FileSize(storagePath string) (int64, error) {
	info, err := os.Stat(filepath.Join(fs.dataDir, storagePath))
	if err != nil {
		return 0, fmt.Errorf("ошибка получения размера %s: %w", storagePath, err)
	}
	return info.Size(), nil
}

// ComputeChecksum вычисляет SHA-256 содержимого файла на диске.
func (fs *FileStore) ComputeChecksum(storagePath string) (string, error) {
	f, err := fs.Open(storagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", storagePath, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {unix_ms}_{uuid8}{ext}. Оригинальное имя в имени на диске
// не участвует — оно хранится только в .attr.json.
func generateStorageName(originalName string) string {
	ext := sanitizeExt(filepath.Ext(originalName))
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s%s", ts, uid, ext)
}

// sanitizeExt оставляет в расширении только безопасные символы.
func sanitizeExt(ext string) string {
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
