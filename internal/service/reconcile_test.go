package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/secureshare/internal/domain/model"
	"github.com/bigkaa/secureshare/internal/storage/attr"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

// setupReconcileTestEnv создаёт тестовое окружение для тестов сверки.
func setupReconcileTestEnv(t *testing.T) (string, *filestore.FileStore, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	store, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := registry.New(logger)

	return dir, store, reg
}

// writeCatalogued кладёт на диск файл с корректным сайдкаром.
func writeCatalogued(t *testing.T, dir string, store *filestore.FileStore, name, fileID string, content []byte) {
	t.Helper()

	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, content, 0o640); err != nil {
		t.Fatalf("Ошибка записи файла: %v", err)
	}

	checksum, err := store.ComputeChecksum(name)
	if err != nil {
		t.Fatalf("Ошибка вычисления checksum: %v", err)
	}

	rec := &model.FileRecord{
		FileID:       fileID,
		OriginalName: name,
		StoragePath:  name,
		ContentType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Size:         int64(len(content)),
		Checksum:     checksum,
		UploadedBy:   "test",
		UploadedAt:   time.Now().UTC(),
	}
	if err := attr.Write(attr.AttrFilePath(filePath), rec); err != nil {
		t.Fatalf("Ошибка записи attr.json: %v", err)
	}
}

func issueOfType(issues []ReconcileIssue, issueType, path string) bool {
	for _, issue := range issues {
		if issue.Type == issueType && issue.Path == path {
			return true
		}
	}
	return false
}

func TestReconcileRunOnce_NoIssues(t *testing.T) {
	dir, store, reg := setupReconcileTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	writeCatalogued(t, dir, store, "good.xlsx", "good-1", []byte("test data"))

	if err := reg.BuildFromDir(dir); err != nil {
		t.Fatalf("Ошибка построения каталога: %v", err)
	}

	rs := NewReconcileService(store, reg, logger)
	result, skipped := rs.RunOnce()

	if skipped {
		t.Fatal("Сверка пропущена")
	}
	if result == nil {
		t.Fatal("Результат nil")
	}
	if len(result.Issues) != 0 {
		t.Errorf("Найдено %d проблем, ожидалось 0", len(result.Issues))
		for _, issue := range result.Issues {
			t.Logf("  %s: %s (path=%s)", issue.Type, issue.Description, issue.Path)
		}
	}
	if result.FilesChecked != 1 {
		t.Errorf("FilesChecked: хотели 1, получили %d", result.FilesChecked)
	}
}

func TestReconcileRunOnce_OrphanedFile(t *testing.T) {
	dir, store, reg := setupReconcileTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Файл на диске без сайдкара
	if err := os.WriteFile(filepath.Join(dir, "orphaned.docx"), []byte("data"), 0o640); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}

	rs := NewReconcileService(store, reg, logger)
	result, _ := rs.RunOnce()

	if result == nil {
		t.Fatal("Результат nil")
	}
	if !issueOfType(result.Issues, IssueOrphanedFile, "orphaned.docx") {
		t.Errorf("Проблема orphaned_file не обнаружена: %+v", result.Issues)
	}
}

func TestReconcileRunOnce_MissingFile(t *testing.T) {
	dir, store, reg := setupReconcileTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	writeCatalogued(t, dir, store, "vanished.xlsx", "gone-1", []byte("data"))

	// Удаляем файл данных, сайдкар остаётся
	if err := os.Remove(filepath.Join(dir, "vanished.xlsx")); err != nil {
		t.Fatalf("Ошибка удаления файла: %v", err)
	}

	rs := NewReconcileService(store, reg, logger)
	result, _ := rs.RunOnce()

	if !issueOfType(result.Issues, IssueMissingFile, "vanished.xlsx") {
		t.Errorf("Проблема missing_file не обнаружена: %+v", result.Issues)
	}

	// File ID из сайдкара должен попасть в описание проблемы
	for _, issue := range result.Issues {
		if issue.Type == IssueMissingFile && issue.FileID != "gone-1" {
			t.Errorf("FileID: хотели gone-1, получили %q", issue.FileID)
		}
	}
}

func TestReconcileRunOnce_Mismatches(t *testing.T) {
	dir, store, reg := setupReconcileTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	writeCatalogued(t, dir, store, "size.xlsx", "size-1", []byte("original"))
	writeCatalogued(t, dir, store, "sum.xlsx", "sum-1", []byte("original"))

	// Меняем размер первого файла
	if err := os.WriteFile(filepath.Join(dir, "size.xlsx"), []byte("другое содержимое"), 0o640); err != nil {
		t.Fatalf("Ошибка перезаписи файла: %v", err)
	}
	// Меняем содержимое второго с сохранением размера
	if err := os.WriteFile(filepath.Join(dir, "sum.xlsx"), []byte("laniGiro"), 0o640); err != nil {
		t.Fatalf("Ошибка перезаписи файла: %v", err)
	}

	rs := NewReconcileService(store, reg, logger)
	result, _ := rs.RunOnce()

	if !issueOfType(result.Issues, IssueSizeMismatch, "size.xlsx") {
		t.Errorf("Проблема size_mismatch не обнаружена: %+v", result.Issues)
	}
	if !issueOfType(result.Issues, IssueChecksumMismatch, "sum.xlsx") {
		t.Errorf("Проблема checksum_mismatch не обнаружена: %+v", result.Issues)
	}
}

// Сверка пересобирает каталог: записи без файлов уходят, новые сайдкары появляются.
func TestReconcileRunOnce_RebuildsRegistry(t *testing.T) {
	dir, store, reg := setupReconcileTestEnv(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	writeCatalogued(t, dir, store, "kept.xlsx", "kept-1", []byte("data"))

	if err := reg.BuildFromDir(dir); err != nil {
		t.Fatalf("Ошибка построения каталога: %v", err)
	}
	if reg.Count() != 1 {
		t.Fatalf("ожидалась 1 запись, получено %d", reg.Count())
	}

	// Новый файл появился на диске мимо каталога (например, скопирован вручную)
	writeCatalogued(t, dir, store, "added.xlsx", "added-1", []byte("more"))

	rs := NewReconcileService(store, reg, logger)
	if _, skipped := rs.RunOnce(); skipped {
		t.Fatal("Сверка пропущена")
	}

	if reg.Count() != 2 {
		t.Errorf("после пересборки ожидалось 2 записи, получено %d", reg.Count())
	}
	if reg.Lookup("added-1") == nil {
		t.Error("запись added-1 должна появиться после пересборки")
	}
}
