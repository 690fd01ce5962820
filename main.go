package main

import (
	"context"
	"database/sql"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"fleet-telemetry-cloud/internal/audit"
	"fleet-telemetry-cloud/internal/observability/metrics"
	natsqueue "fleet-telemetry-cloud/internal/queue/nats"
	"fleet-telemetry-cloud/internal/telemetry/application"
	telemetrypostgres "fleet-telemetry-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "fleet-telemetry-cloud/internal/telemetry/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(logOutput(cfg.LogFile), "", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	ingestCfg, err := application.LoadIngestConfig()
	if err != nil {
		logger.Fatalf("ingest config error: %v", err)
	}

	intakeQueue, err := natsqueue.New(ctx, cfg.NATSUrl, "fleet-telemetry-cloud", cfg.StreamName, cfg.Subject, cfg.Durable, ingestCfg.QueueOptions())
	if err != nil {
		logger.Fatalf("queue init error: %v", err)
	}
	defer intakeQueue.Close()
	logger.Printf("queue ready: stream=%s subject=%s", cfg.StreamName, cfg.Subject)

	telemetryRepo := telemetrypostgres.NewTelemetryRepository(db)
	telemetryQuery := telemetrypostgres.NewTelemetryQuery(db)
	deadLetters := telemetrypostgres.NewDeadLetterStore(db)
	auditRepo := audit.NewRepository(db)

	ingestor, err := application.NewIngestor(intakeQueue, telemetryRepo, deadLetters, auditRepo, logger, ingestCfg)
	if err != nil {
		logger.Fatalf("ingestor init error: %v", err)
	}
	go ingestor.Run(ctx)
	logger.Printf("ingestor running: workers=%d batch=%d", ingestCfg.Workers, ingestCfg.BatchSize)

	queryService, err := application.NewQueryService(telemetryQuery, logger)
	if err != nil {
		logger.Fatalf("query service init error: %v", err)
	}

	intakeHandler, err := telemetryhttp.NewIntakeHandler(intakeQueue, logger)
	if err != nil {
		logger.Fatalf("intake handler error: %v", err)
	}
	listHandler, err := telemetryhttp.NewListHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("list handler error: %v", err)
	}
	deviceHandler, err := telemetryhttp.NewDeviceHandler(queryService, logger, "/api/v1/telemetry/devices/")
	if err != nil {
		logger.Fatalf("device handler error: %v", err)
	}
	summaryHandler, err := telemetryhttp.NewSummaryHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("summary handler error: %v", err)
	}
	exportCSV, err := telemetryhttp.NewExportCSVHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("export csv handler error: %v", err)
	}
	exportXLSX, err := telemetryhttp.NewExportXLSXHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("export xlsx handler error: %v", err)
	}
	exportPDF, err := telemetryhttp.NewExportSummaryPDFHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("export pdf handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/telemetry", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			intakeHandler.ServeHTTP(w, r)
		case http.MethodGet:
			listHandler.ServeHTTP(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.Handle("/api/v1/telemetry/devices/", deviceHandler)
	mux.Handle("/api/v1/telemetry/summary", summaryHandler)
	mux.Handle("/api/v1/exports/telemetry.csv", exportCSV)
	mux.Handle("/api/v1/exports/telemetry.xlsx", exportXLSX)
	mux.Handle("/api/v1/exports/summary.pdf", exportPDF)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: telemetryhttp.WithCORS(loggingMiddleware(mux, logger)),
	}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http serve error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	NATSUrl     string
	StreamName  string
	Subject     string
	Durable     string
	LogFile     string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		NATSUrl:     getenvDefault("NATS_URL", "nats://localhost:4222"),
		StreamName:  getenvDefault("QUEUE_STREAM", "TELEMETRY_INTAKE"),
		Subject:     getenvDefault("QUEUE_SUBJECT", "telemetry.intake"),
		Durable:     getenvDefault("QUEUE_DURABLE", "telemetry-ingest"),
		LogFile:     getenvDefault("LOG_FILE", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func logOutput(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
