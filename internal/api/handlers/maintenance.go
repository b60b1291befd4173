// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует сверку в ReconcileService.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/service"
)

// ReconcileRunner — интерфейс для запуска сверки.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл сверки.
	// Возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ReconcileResult, bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile (роль uploader).
// Запускает синхронный цикл сверки и возвращает результат.
// Если сверка уже выполняется — 409.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	result, inProgress := h.reconciler.RunOnce()
	if inProgress {
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeReconcileInProgress,
			"Сверка уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
