// reconcile.go — сверка каталога файлов с содержимым диска.
//
// Сверка сравнивает:
//   - Файлы на диске с сайдкарами .attr.json
//   - Сайдкары с физическими файлами
//   - Контрольные суммы и размеры файлов
//
// Обнаруживает проблемы:
//   - orphaned_file: файл на диске без .attr.json
//   - missing_file: .attr.json без файла на диске
//   - checksum_mismatch: не совпадает checksum
//   - size_mismatch: не совпадает размер
//
// После сверки каталог пересобирается из сайдкаров. Запускается
// по запросу оператора через maintenance-endpoint.
package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/storage/attr"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

// Типы проблем, обнаруживаемых сверкой.
const (
	IssueOrphanedFile     = "orphaned_file"
	IssueMissingFile      = "missing_file"
	IssueChecksumMismatch = "checksum_mismatch"
	IssueSizeMismatch     = "size_mismatch"
)

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество запусков сверки.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_reconcile_runs_total",
		Help: "Общее количество запусков сверки каталога",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ss_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	// Type — тип проблемы
	Type string `json:"type"`
	// FileID — идентификатор файла из сайдкара, если известен
	FileID string `json:"file_id,omitempty"`
	// Path — имя файла на диске
	Path string `json:"path"`
	// Description — описание проблемы
	Description string `json:"description"`
}

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	FilesChecked int              `json:"files_checked"`
	Issues       []ReconcileIssue `json:"issues"`
}

// ReconcileService — сверка каталога с диском.
type ReconcileService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	store *filestore.FileStore,
	reg *registry.Registry,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "reconcile")),
	}
}

// RunOnce выполняет один цикл сверки и пересборку каталога.
// Потокобезопасен: если сверка уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce() (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Сверка каталога начата")

	issues := rs.reconcile()

	// Пересобираем каталог из сайдкаров
	if err := rs.reg.BuildFromDir(rs.store.DataDir()); err != nil {
		rs.logger.Error("Ошибка пересборки каталога",
			slog.String("error", err.Error()),
		)
	}
	middleware.FilesTotal.Set(float64(rs.reg.Count()))

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка каталога завершена",
		slog.Int("files_checked", rs.reg.Count()),
		slog.Int("issues", len(issues)),
		slog.Duration("duration", duration),
	)

	return &ReconcileResult{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		FilesChecked: rs.reg.Count(),
		Issues:       issues,
	}, false
}

// reconcile выполняет сверку данных на диске.
func (rs *ReconcileService) reconcile() []ReconcileIssue {
	issues := []ReconcileIssue{}

	// Файлы данных и сайдкары на диске
	dataFiles := make(map[string]bool)
	attrFiles := make(map[string]bool)

	entries, err := os.ReadDir(rs.store.DataDir())
	if err != nil {
		rs.logger.Error("Ошибка чтения директории данных",
			slog.String("error", err.Error()),
		)
		return issues
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		// Пропускаем служебные и temp файлы
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}

		if attr.IsAttrFile(name) {
			attrFiles[name] = true
		} else {
			dataFiles[name] = true
		}
	}

	// 1. Файл данных без сайдкара (orphaned_file)
	for dataFile := range dataFiles {
		if !attrFiles[dataFile+attr.AttrSuffix] {
			issues = append(issues, ReconcileIssue{
				Type:        IssueOrphanedFile,
				Path:        dataFile,
				Description: "Файл на диске без .attr.json",
			})
		}
	}

	// 2. Сайдкар без файла данных (missing_file)
	for attrFile := range attrFiles {
		dataFile := strings.TrimSuffix(attrFile, attr.AttrSuffix)
		if dataFiles[dataFile] {
			continue
		}

		issue := ReconcileIssue{
			Type:        IssueMissingFile,
			Path:        dataFile,
			Description: ".attr.json без соответствующего файла на диске",
		}
		if rec, readErr := attr.Read(filepath.Join(rs.store.DataDir(), attrFile)); readErr == nil {
			issue.FileID = rec.FileID
		}
		issues = append(issues, issue)
	}

	// 3. Целостность файлов: размер и checksum
	for attrFile := range attrFiles {
		dataFile := strings.TrimSuffix(attrFile, attr.AttrSuffix)
		if !dataFiles[dataFile] {
			continue
		}

		rec, readErr := attr.Read(filepath.Join(rs.store.DataDir(), attrFile))
		if readErr != nil {
			rs.logger.Warn("Ошибка чтения .attr.json при сверке",
				slog.String("attr_file", attrFile),
				slog.String("error", readErr.Error()),
			)
			continue
		}

		actualSize, sizeErr := rs.store.FileSize(dataFile)
		if sizeErr != nil {
			rs.logger.Warn("Ошибка получения размера файла",
				slog.String("file", dataFile),
				slog.String("error", sizeErr.Error()),
			)
			continue
		}

		if actualSize != rec.Size {
			issues = append(issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				FileID:      rec.FileID,
				Path:        dataFile,
				Description: "Размер файла на диске не совпадает с .attr.json",
			})
			continue // при несовпадении размера checksum не сойдётся заведомо
		}

		actualChecksum, csErr := rs.store.ComputeChecksum(dataFile)
		if csErr != nil {
			rs.logger.Warn("Ошибка вычисления checksum",
				slog.String("file", dataFile),
				slog.String("error", csErr.Error()),
			)
			continue
		}

		if actualChecksum != rec.Checksum {
			issues = append(issues, ReconcileIssue{
				Type:        IssueChecksumMismatch,
				FileID:      rec.FileID,
				Path:        dataFile,
				Description: "Checksum файла на диске не совпадает с .attr.json",
			})
		}
	}

	return issues
}
