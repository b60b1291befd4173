// Точка входа SecureShare — сервиса одноразовых ссылок на скачивание файлов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/secureshare/internal/api/handlers"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/auth"
	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/ledger"
	"github.com/bigkaa/secureshare/internal/server"
	"github.com/bigkaa/secureshare/internal/service"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("SecureShare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("base_url", cfg.BaseURL),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. In-memory каталог файлов
	reg := registry.New(logger)
	if err := reg.BuildFromDir(cfg.DataDir); err != nil {
		logger.Error("Ошибка построения каталога", slog.String("error", err.Error()))
		os.Exit(1)
	}
	middleware.FilesTotal.Set(float64(reg.Count()))
	logger.Info("Каталог файлов построен", slog.Int("files", reg.Count()))

	// 3. Пользователи: служебный uploader из конфигурации
	users := auth.NewUserStore(logger)
	if err := users.SeedUploader(cfg.UploaderEmail, cfg.UploaderPassword); err != nil {
		logger.Error("Ошибка создания служебного uploader", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. JWT-кодек
	codec, err := token.New(cfg.JWTSecret)
	if err != nil {
		logger.Error("Ошибка инициализации JWT", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Реестр download-токенов
	led := ledger.New(codec, reg, cfg.DownloadTTL, logger)

	// 6. Сервисы
	uploadSvc := service.NewUploadService(cfg, store, reg, logger)
	grantSvc := service.NewGrantService(cfg, led, store, logger)
	accountSvc := service.NewAccountService(cfg, users, codec, service.NewLogMailer(logger), logger)
	reconcileSvc := service.NewReconcileService(store, reg, logger)

	// 7. Фоновая очистка истёкших токенов
	ctx := context.Background()
	sweeper := service.NewSweeper(led, cfg.SweepInterval, logger)
	sweeper.Start(ctx)

	// 8. Handlers и middleware
	sessionAuth := middleware.NewSessionAuth(codec, logger)
	h := server.Handlers{
		Auth:        handlers.NewAuthHandler(accountSvc),
		Files:       handlers.NewFilesHandler(uploadSvc, reg),
		Redeem:      handlers.NewRedeemHandler(grantSvc),
		Health:      handlers.NewHealthHandler(cfg.DataDir, reg),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc),
	}

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, sessionAuth, h)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	sweeper.Stop()

	logger.Info("SecureShare остановлен")
}
