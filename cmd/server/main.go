package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/config"
	"github.com/pesio-ai/be-ap-capture/internal/extraction"
	"github.com/pesio-ai/be-ap-capture/internal/handler"
	"github.com/pesio-ai/be-ap-capture/internal/lifecycle"
	"github.com/pesio-ai/be-ap-capture/internal/logger"
	"github.com/pesio-ai/be-ap-capture/internal/repository"
	"github.com/pesio-ai/be-ap-capture/internal/resolver"
	"github.com/pesio-ai/be-ap-capture/internal/service"
)

func main() {
	// Load configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting AP Capture Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(pool, log)
	vendorRepo := repository.NewVendorRepository(pool, log)

	// Initialize collaborator service clients
	ocrClient := client.NewOCRClient(cfg.OCR.BaseURL, cfg.OCR.APIKey,
		&http.Client{Timeout: cfg.OCR.Timeout}, log)
	searchClient := client.NewSearchClient(cfg.Search.BaseURL, cfg.Search.APIKey,
		&http.Client{Timeout: cfg.Search.Timeout}, log)
	reasoningClient := client.NewReasoningClient(cfg.Reasoning.BaseURL, cfg.Reasoning.APIKey,
		cfg.Reasoning.Model, cfg.Reasoning.Temperature,
		&http.Client{Timeout: cfg.Reasoning.Timeout}, log)

	// Blob storage is optional; without it originals are not archived.
	var blobs client.BlobStoreInterface
	if cfg.Storage.Bucket != "" {
		gcs, err := client.NewGCSBlobStore(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsJSON, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create blob store")
		}
		defer gcs.Close()
		blobs = gcs
	}

	// NATS is optional; lifecycle events are best-effort.
	var events *client.NotificationPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, lifecycle events disabled")
		} else {
			defer nc.Close()
			events = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log)
		}
	}

	// Redis is optional; without it the unique index alone serializes
	// duplicate uploads.
	var locker lifecycle.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		locker = lifecycle.NewRedisLocker(rdb, log)
	}

	// Assemble the pipeline
	adapter := extraction.NewAdapter(ocrClient, log)
	retriever := extraction.NewContextRetriever(searchClient, log)
	semantic := extraction.NewSemanticExtractor(reasoningClient, log)
	vendorResolver := resolver.New(vendorRepo, searchClient, reasoningClient, log)
	manager := lifecycle.NewManager(invoiceRepo, locker, events, log)

	captureService := service.NewCaptureService(
		adapter, retriever, semantic, vendorResolver, manager, invoiceRepo, blobs, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(captureService, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httpHandler.Health)

	mux.HandleFunc("/api/v1/invoices", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListInvoices(w, r)
		case http.MethodPost:
			httpHandler.Upload(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/invoices/get", httpHandler.GetInvoice)
	mux.HandleFunc("/api/v1/invoices/approve", httpHandler.ApproveInvoice)
	mux.HandleFunc("/api/v1/invoices/reject", httpHandler.RejectInvoice)
	mux.HandleFunc("/api/v1/invoices/pay", httpHandler.PayInvoice)
	mux.HandleFunc("/api/v1/invoices/cancel", httpHandler.CancelInvoice)
	mux.HandleFunc("/api/v1/invoices/document", httpHandler.GetDocumentURL)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
