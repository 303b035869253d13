package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"form-analytics-service/internal/config"
	"form-analytics-service/internal/controller"
	"form-analytics-service/internal/db"
	httpserver "form-analytics-service/internal/http"
	"form-analytics-service/internal/kv"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/objectstore"
	"form-analytics-service/internal/repository"
	"form-analytics-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog, err := logger.New(cfg.AppMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := kv.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		appLog.Fatal("connect redis", "error", err)
	}
	defer rdb.Close()
	store := kv.NewRedisStore(rdb, cfg.KVPrefix)

	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		appLog.Fatal("connect clickhouse", "error", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn); err != nil {
		appLog.Fatal("migrate", "error", err)
	}

	var objects objectstore.Store
	if cfg.ObjectStoreEnabled() {
		objects, err = objectstore.NewMinIOStore(ctx, objectstore.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			appLog.Fatal("connect object store", "error", err)
		}
	} else {
		appLog.Warn("MINIO_ENDPOINT not set, embed cache and export archive disabled")
	}

	eventRepo := repository.NewEventRepository(conn)
	worker := service.NewBatchEventWorker(eventRepo, appLog, cfg.WorkerBufferSize, cfg.WorkerBatchSize, cfg.WorkerFlushEvery)

	abTests := service.NewABTestService(store, appLog)
	collector := service.NewAnalyticsCollector(store, abTests, appLog, cfg.SessionIdleTimeout)
	journeys := service.NewJourneyService(store)
	conversions := service.NewConversionService(store, worker, journeys, appLog, cfg.EventFutureTolerance)
	webhooks := service.NewWebhookNotifier(appLog, cfg.WebhookTimeout)
	forms := service.NewFormService(repository.NewFormRepository(store), appLog, service.FormServiceOptions{
		Objects:   objects,
		Webhooks:  webhooks,
		Purgers:   []service.FormDataPurger{collector, abTests, conversions},
		BaseURL:   cfg.PublicBaseURL,
		Retention: cfg.SubmissionRetention,
	})

	server := httpserver.NewServer(cfg, appLog, httpserver.Controllers{
		Forms:    controller.NewFormController(forms, collector),
		Sessions: controller.NewSessionController(collector),
		Tracking: controller.NewTrackingController(conversions, abTests, journeys),
	})

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		collector.RunSweeper(ctx, cfg.SessionSweepEvery)
	}()

	go func() {
		appLog.Info("starting server", "addr", cfg.HTTPPort)
		if err := server.Listen(cfg.HTTPPort); err != nil {
			appLog.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server shutdown", "error", err)
	}
	background.Wait()
	worker.Shutdown()
	webhooks.Wait()
}
