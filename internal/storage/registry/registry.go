// Пакет registry — потокобезопасный in-memory каталог файлов.
//
// Каталог append-only: записи создаются при загрузке и не изменяются.
// При старте восстанавливается из sidecar .attr.json файлов (BuildFromDir).
// Наружу всегда отдаются копии записей.
//
// Не персистентный: при рестарте пересобирается из .attr.json.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bigkaa/secureshare/internal/domain/model"
	"github.com/bigkaa/secureshare/internal/storage/attr"
)

// maxIDAttempts — число попыток генерации file_id при коллизии.
// Коллизия UUID v4 практически невозможна, но молчаливая перезапись
// записи каталога недопустима.
const maxIDAttempts = 5

// Registry — потокобезопасный каталог файлов.
// Использует sync.RWMutex: чтение конкурентное, запись эксклюзивная.
type Registry struct {
	mu     sync.RWMutex
	files  map[string]*model.FileRecord // file_id → record
	ready  bool                         // каталог построен и готов
	logger *slog.Logger
}

// New создаёт пустой каталог. Для восстановления с диска вызовите BuildFromDir.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		files:  make(map[string]*model.FileRecord),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// BuildFromDir строит каталог из .attr.json файлов в указанной директории.
// Вызывается при старте сервера и при reconcile. Заменяет текущее
// содержимое каталога. После успешного построения каталог помечается ready.
func (r *Registry) BuildFromDir(dataDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := attr.ScanDir(dataDir)
	if err != nil {
		return fmt.Errorf("ошибка сканирования директории %s: %w", dataDir, err)
	}

	r.files = make(map[string]*model.FileRecord, len(records))
	for _, rec := range records {
		r.files[rec.FileID] = rec
	}

	r.ready = true

	r.logger.Info("Каталог файлов построен",
		slog.Int("files", len(r.files)),
		slog.String("data_dir", dataDir),
	)

	return nil
}

// IsReady возвращает true, если каталог построен и готов к использованию.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Register присваивает записи свежий file_id и добавляет её в каталог.
// Существующие записи никогда не перезаписываются: при коллизии
// идентификатор генерируется заново, после maxIDAttempts — ошибка.
// Возвращает присвоенный file_id.
func (r *Registry) Register(rec *model.FileRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxIDAttempts {
		id := uuid.New().String()
		if _, exists := r.files[id]; exists {
			continue
		}
		rec.FileID = id
		copied := *rec
		r.files[id] = &copied
		return id, nil
	}

	return "", fmt.Errorf("не удалось присвоить уникальный file_id за %d попыток", maxIDAttempts)
}

// Add добавляет готовую запись в каталог (восстановление, тесты).
// В отличие от Register не присваивает идентификатор и возвращает
// ошибку при попытке перезаписи.
func (r *Registry) Add(rec *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.files[rec.FileID]; exists {
		return fmt.Errorf("файл %s уже есть в каталоге", rec.FileID)
	}
	copied := *rec
	r.files[rec.FileID] = &copied
	return nil
}

// Lookup возвращает запись каталога по file_id.
// Возвращает nil, если файл не найден. Всегда копия.
func (r *Registry) Lookup(fileID string) *model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.files[fileID]
	if !ok {
		return nil
	}

	copied := *rec
	return &copied
}

// List возвращает все записи каталога, отсортированные по дате
// загрузки (новые первые). Записи — копии.
func (r *Registry) List() []*model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.FileRecord, 0, len(r.files))
	for _, rec := range r.files {
		copied := *rec
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})

	return result
}

// Remove удаляет запись из каталога по file_id.
// Используется только при откате неудавшейся загрузки.
// Возвращает true, если запись была найдена и удалена.
func (r *Registry) Remove(fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[fileID]; !ok {
		return false
	}
	delete(r.files, fileID)
	return true
}

// Count возвращает количество записей в каталоге.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
