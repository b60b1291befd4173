// sweeper.go — фоновая очистка реестра download-токенов.
//
// Sweep выполняется и на каждой выдаче токена, фоновый процесс лишь
// гарантирует, что реестр не растёт в периоды без выдач.
// Запускается как горутина с периодическим тикером (SS_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/secureshare/internal/ledger"
)

// Prometheus метрики sweep'а
var (
	// sweepRunsTotal — количество запусков sweep'а.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_sweep_runs_total",
		Help: "Общее количество запусков sweep'а реестра",
	})

	// sweepDurationSeconds — длительность выполнения sweep'а.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ss_sweep_duration_seconds",
		Help:    "Длительность выполнения sweep'а в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// SweepResult — результат одного запуска sweep'а.
type SweepResult struct {
	// Removed — количество удалённых записей
	Removed int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — фоновый процесс очистки реестра.
type Sweeper struct {
	led      *ledger.Ledger
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweeper создаёт фоновый процесс очистки.
func NewSweeper(led *ledger.Ledger, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		led:      led,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Sweeper запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Sweeper остановлен")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (s *Sweeper) RunOnce() *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	removed := s.led.SweepExpired()
	duration := time.Since(start)

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(duration.Seconds())

	if removed > 0 {
		s.logger.Info("Sweep завершён",
			slog.Int("removed", removed),
			slog.Duration("duration", duration),
		)
	}

	return &SweepResult{Removed: removed, Duration: duration}
}
