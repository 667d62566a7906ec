package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/yankun-li/heatledger/internal/config"
	"github.com/yankun-li/heatledger/internal/handler"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/middleware"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/service"
	"github.com/yankun-li/heatledger/internal/service/billing"
	"github.com/yankun-li/heatledger/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("heatledger-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	unitRepo := repository.NewUnitRepository(db)
	readingRepo := repository.NewReadingRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	weatherRepo := repository.NewWeatherRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	weatherClient := weather.NewClient(
		cfg.WeatherBaseURL,
		cfg.DefaultLat,
		cfg.DefaultLon,
		time.Duration(cfg.WeatherTimeoutS)*time.Second,
		weatherRepo,
		settingRepo,
	)

	billingSvc := billing.NewService(unitRepo, readingRepo, transactionRepo, weatherClient, db, cfg.BatchMaxInFlight)
	unitSvc := service.NewUnitService(unitRepo, readingRepo, transactionRepo, db)
	ledgerSvc := service.NewLedgerService(unitRepo, readingRepo, transactionRepo, db)
	hierarchySvc := service.NewHierarchyService(unitRepo, transactionRepo, db)
	snapshotSvc := service.NewSnapshotService(unitRepo, readingRepo, transactionRepo, db)
	settingsSvc := service.NewSettingsService(settingRepo)
	importSvc := service.NewImportService(unitRepo, transactionRepo, unitSvc, billingSvc, settingsSvc, db)

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	authHandler := handler.NewAuthHandler(cfg.AccessPassword, cfg.JWTSecret, sessionTTL)
	unitHandler := handler.NewUnitHandler(unitSvc, hierarchySvc)
	readingHandler := handler.NewReadingHandler(billingSvc)
	transactionHandler := handler.NewTransactionHandler(ledgerSvc)
	snapshotHandler := handler.NewSnapshotHandler(snapshotSvc)
	importExportHandler := handler.NewImportExportHandler(importSvc, unitSvc, ledgerSvc, snapshotSvc)
	settingHandler := handler.NewSettingHandler(settingsSvc, weatherClient)
	healthHandler := handler.NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/units", unitHandler.Create)
	api.HandleFunc("GET /api/v1/units", unitHandler.List)
	api.HandleFunc("GET /api/v1/units/stats", unitHandler.Stats)
	api.HandleFunc("GET /api/v1/units/{id}", unitHandler.Get)
	api.HandleFunc("PATCH /api/v1/units/{id}", unitHandler.Update)
	api.HandleFunc("DELETE /api/v1/units/{id}", unitHandler.Delete)
	api.HandleFunc("GET /api/v1/units/{id}/children", unitHandler.Children)
	api.HandleFunc("POST /api/v1/units/{id}/parent", unitHandler.LinkParent)
	api.HandleFunc("DELETE /api/v1/units/{id}/parent", unitHandler.UnlinkParent)
	api.HandleFunc("GET /api/v1/units/{id}/readings", readingHandler.ListByUnit)

	api.HandleFunc("POST /api/v1/readings", readingHandler.Submit)
	api.HandleFunc("POST /api/v1/readings/batch", readingHandler.SubmitBatch)
	api.HandleFunc("PATCH /api/v1/readings/{id}", readingHandler.Update)
	api.HandleFunc("DELETE /api/v1/readings/{id}", readingHandler.Delete)

	api.HandleFunc("GET /api/v1/transactions", transactionHandler.List)
	api.HandleFunc("POST /api/v1/transactions/recharge", transactionHandler.Recharge)
	api.HandleFunc("POST /api/v1/transactions/adjust", transactionHandler.Adjust)
	api.HandleFunc("DELETE /api/v1/transactions/{id}", transactionHandler.Delete)

	api.HandleFunc("GET /api/v1/snapshots", snapshotHandler.Get)

	api.HandleFunc("GET /api/v1/settings/{key}", settingHandler.Get)
	api.HandleFunc("PUT /api/v1/settings/{key}", settingHandler.Put)
	api.HandleFunc("POST /api/v1/settings/test-weather", settingHandler.TestWeather)

	api.HandleFunc("POST /api/v1/import/units", importExportHandler.ImportUnits)
	api.HandleFunc("POST /api/v1/import/readings", importExportHandler.ImportReadings)
	api.HandleFunc("GET /api/v1/export/units", importExportHandler.ExportUnits)
	api.HandleFunc("GET /api/v1/export/transactions", importExportHandler.ExportTransactions)
	api.HandleFunc("GET /api/v1/export/settlement", importExportHandler.ExportSettlement)

	mux.Handle("/api/v1/", middleware.Auth(cfg.JWTSecret)(api))

	var root http.Handler = mux
	root = middleware.Recovery(root)
	root = middleware.Logging(root)
	root = middleware.RequestID(root)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
