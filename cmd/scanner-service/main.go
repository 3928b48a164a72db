package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	"ms-booking/internal/config"
	invdb "ms-booking/internal/inventory/db"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/tickets"
	ticketapi "ms-booking/internal/tickets/api"
	ticketdb "ms-booking/internal/tickets/db"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/tickets/template"
)

// Standalone entry-gate service. Runs next to the booking service and only
// needs the scan path: validate a credential, admit once, record the attempt.

func connectDatabase(log *logger.Logger) *bun.DB {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Error("Database", "POSTGRES_DSN not set")
		os.Exit(1)
	}
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("Database", fmt.Sprintf("Failed to open Postgres: %v", err))
		os.Exit(1)
	}
	if err := sqldb.Ping(); err != nil {
		log.Error("Database", fmt.Sprintf("Failed to connect to Postgres: %v", err))
		os.Exit(1)
	}
	log.Info("Database", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	log := logger.NewLogger()
	_ = godotenv.Load()

	cfg := config.Load()

	bunDB := connectDatabase(log)
	defer bunDB.Close()

	var publisher tickets.KafkaPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		publisher = producer
		log.Info("Kafka", "Scan event publishing enabled")
	} else {
		log.Info("Kafka", "Kafka disabled, scan events will not be published")
	}

	ticketService := tickets.NewService(
		&ticketdb.DB{Bun: bunDB},
		qr.NewGenerator(cfg.QR.SecretKey),
		template.NewTicketPDFGenerator(),
		publisher,
		log,
	)
	handler := ticketapi.NewHandler(ticketService, &invdb.DB{Bun: bunDB}, log)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Post("/api/tickets/scan", handler.Scan)
		r.Get("/api/tickets/{ticketId}/scans", handler.GetScanHistory)
	})

	port := os.Getenv("SCANNER_PORT")
	if port == "" {
		port = ":8085"
	}
	server := &http.Server{
		Addr:         port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server", fmt.Sprintf("Scanner service listening on %s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server", fmt.Sprintf("HTTP error: %v", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	if producer != nil {
		_ = producer.Close()
	}
	log.Info("Server", "Scanner service shutdown complete")
}
