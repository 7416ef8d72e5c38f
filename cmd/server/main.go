package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/escrow-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/jobs"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/storage"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Кэш читаемых моделей. Без redis сервис работает, чтения идут из базы.
	var readCache *cache.Cache
	if c, err := cache.New(cfg.RedisAddr, "", 0); err != nil {
		logger.Log.WithError(err).Warn("main: redis недоступен, кэш отключён")
	} else {
		readCache = c
		defer readCache.Close()
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.UploadStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Мост к контракту escrow через wallet-relay.
	bridge := chain.NewRelayBridge(cfg.WalletRelayURL)
	contract := chain.Contract{
		Principal:     cfg.ContractPrincipal,
		SBTCPrincipal: cfg.SBTCPrincipal,
	}

	// Репозитории.
	projectRepo := repository.NewProjectRepository(dbConn)
	proposalRepo := repository.NewProposalRepository(dbConn)
	submissionRepo := repository.NewSubmissionRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	reconciliationRepo := repository.NewReconciliationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGo(hub.Run)

	// Сервисы.
	locks := service.NewProjectLocker()
	coordinator := service.NewCoordinator(locks, reconciliationRepo)

	var progressCache service.ProgressCache
	if readCache != nil {
		progressCache = readCache
	}

	proposalService := service.NewProposalService(proposalRepo, projectRepo, locks, hub)
	milestoneService := service.NewMilestoneService(projectRepo, proposalRepo, submissionRepo, disputeRepo, coordinator, progressCache, hub, cfg.MilestoneReleaseMode)
	disputeService := service.NewDisputeService(disputeRepo, projectRepo, submissionRepo, coordinator, bridge, contract, hub, cfg.MilestoneReleaseMode)
	adminService := service.NewAdminService(projectRepo, reconciliationRepo, milestoneService, disputeService, locks, hub)
	ownershipService := service.NewOwnershipService(bridge, contract, progressCache, cfg.ContractOwner)

	// Фоновые задачи.
	scheduler := jobs.NewScheduler(ownershipService, adminService, projectRepo)
	if err := scheduler.Start(ctx, cfg.OwnershipPollSpec, cfg.OrphanSweepSpec); err != nil {
		log.Fatalf("main: не удалось запустить планировщик: %v", err)
	}
	defer scheduler.Stop()

	// HTTP хэндлеры.
	projectHandler := httpHandlers.NewProjectHandler(milestoneService)
	proposalHandler := httpHandlers.NewProposalHandler(proposalService)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	adminHandler := httpHandlers.NewAdminHandler(disputeService, adminService, ownershipService)
	uploadHandler := httpHandlers.NewUploadHandler(evidenceStorage)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, readCache)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, projectHandler, proposalHandler, milestoneHandler, disputeHandler, adminHandler, uploadHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
