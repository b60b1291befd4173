// Пакет attr — чтение и запись sidecar-файлов метаданных (.attr.json).
// Каждый файл в хранилище имеет сопутствующий *.attr.json с записью
// каталога; при старте сервиса каталог восстанавливается сканированием
// этих файлов. Все операции записи атомарны: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/secureshare/internal/domain/model"
)

// AttrSuffix — суффикс файла метаданных.
const AttrSuffix = ".attr.json"

// maxAttrFileSize — максимальный допустимый размер .attr.json (4 КБ).
// Ограничение гарантирует атомарность записи.
const maxAttrFileSize = 4096

// AttrFilePath возвращает путь к .attr.json для данного файла данных.
// Пример: "/data/report.xlsx" → "/data/report.xlsx.attr.json"
func AttrFilePath(dataFilePath string) string {
	return dataFilePath + AttrSuffix
}

// IsAttrFile проверяет, является ли путь файлом метаданных.
func IsAttrFile(path string) bool {
	return strings.HasSuffix(path, AttrSuffix)
}

// Write атомарно записывает запись каталога в .attr.json файл.
// Паттерн: JSON → temp файл → fsync → atomic rename.
// Возвращает ошибку, если сериализованные данные превышают 4 КБ.
func Write(path string, rec *model.FileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	// Проверка размера для гарантии атомарности
	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер .attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует запись каталога из .attr.json файла.
func Read(path string) (*model.FileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения .attr.json %s: %w", path, err)
	}

	var rec model.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации .attr.json %s: %w", path, err)
	}

	return &rec, nil
}

// Delete удаляет .attr.json файл. Возвращает nil если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления .attr.json %s: %w", path, err)
	}
	return nil
}

// ScanDir сканирует директорию и возвращает все записи каталога.
// Не рекурсивный — сканирует только указанную директорию.
// Используется при восстановлении каталога при старте.
func ScanDir(dir string) ([]*model.FileRecord, error) {
	pattern := filepath.Join(dir, "*"+AttrSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	var result []*model.FileRecord
	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			// Невалидные .attr.json пропускаются
			continue
		}
		result = append(result, rec)
	}

	return result, nil
}
