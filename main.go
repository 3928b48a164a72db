package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	booking_api "ms-booking/internal/booking/api"
	bookingdb "ms-booking/internal/booking/db"
	holdredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/inventory"
	invdb "ms-booking/internal/inventory/db"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/pricing"
	coupondb "ms-booking/internal/pricing/db"
	"ms-booking/internal/tickets"
	ticket_api "ms-booking/internal/tickets/api"
	ticketdb "ms-booking/internal/tickets/db"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/tickets/template"
)

// subscribeHoldExpiry watches Redis keyspace notifications for expired hold
// leases and cancels the bookings whose payment window lapsed.
func subscribeHoldExpiry(rdb *redis.Client, bookingService *booking.Service, log *logger.Logger) {
	ctx := context.Background()

	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else {
		log.Info("REDIS", fmt.Sprintf("Current keyspace notifications setting: %v", val))
		if len(val) < 2 || !strings.Contains(val[1].(string), "x") || !strings.Contains(val[1].(string), "E") {
			log.Warn("REDIS", "Keyspace notifications not properly configured for expiry events!")
		}
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", fmt.Sprintf("Subscribed to Redis keyevent expired notifications (DB %d)", rdb.Options().DB))

	go func() {
		for msg := range pubsub.Channel() {
			bookingID := holdredis.BookingIDFromExpiredKey(msg.Payload)
			if bookingID == "" {
				continue
			}
			log.Info("HOLD_EXPIRY", fmt.Sprintf("Hold lease expired for booking: %s", bookingID))
			if err := bookingService.ExpireHold(bookingID); err != nil {
				log.Error("HOLD_EXPIRY", fmt.Sprintf("Failed to expire booking %s: %v", bookingID, err))
			}
		}
	}()
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers)
		log.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.BookingCreated,
			cfg.Kafka.Topics.BookingConfirmed,
			cfg.Kafka.Topics.BookingCancelled,
			cfg.Kafka.Topics.TicketScanned,
			cfg.Kafka.Topics.Notifications,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, booking events will not be published")
	}

	// Assigning a nil *kafka.Producer straight into the interfaces would make
	// the nil checks in the services pass; keep them nil interfaces instead.
	var ticketPublisher tickets.KafkaPublisher
	var bookingPublisher booking.KafkaPublisher
	if kafkaProducer != nil {
		ticketPublisher = kafkaProducer
		bookingPublisher = kafkaProducer
	}

	ledger := inventory.NewService(&invdb.DB{Bun: bunDB}, log)
	pricingEngine := pricing.NewEngine(&coupondb.DB{Bun: bunDB}, log)

	qrGenerator := qr.NewGenerator(cfg.QR.SecretKey)
	ticketService := tickets.NewService(
		&ticketdb.DB{Bun: bunDB},
		qrGenerator,
		template.NewTicketPDFGenerator(),
		ticketPublisher,
		log,
	)

	holds := holdredis.NewHold(redisClient, cfg.Booking.HoldTTL, log)

	var notifier notify.Notifier
	if kafkaProducer != nil {
		notifier = notify.NewKafkaNotifier(kafkaProducer, log)
	} else {
		notifier = &notify.LogNotifier{Logger: log}
	}

	gateway, err := booking.NewStripeGateway(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Failed to initialize payment gateway: %v", err))
	}

	eventStore := &invdb.DB{Bun: bunDB}
	bookingService := booking.NewService(
		&bookingdb.DB{Bun: bunDB},
		ledger,
		eventStore,
		holds,
		bookingPublisher,
		ticketService,
		pricingEngine,
		gateway,
		notifier,
		cfg.Booking.Currency,
		log,
	)

	handler := booking_api.NewHandler(bookingService, ledger, pricingEngine, log)
	ticketHandler := ticket_api.NewHandler(ticketService, eventStore, log)
	webhookHandler := booking_api.NewWebhookHandler(bookingService, cfg.Stripe.WebhookSecret, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/stripe", webhookHandler.HandleStripeWebhook)
	log.Info("ROUTER", "Public health, metrics and webhook endpoints registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/booking", func(r chi.Router) {
				r.Post("/", handler.CreateBooking)
				r.Get("/{bookingId}", handler.GetBooking)
				r.Delete("/{bookingId}", handler.CancelBooking)
				r.Patch("/{bookingId}", handler.UpdateBooking)
				r.Post("/{bookingId}/confirm", handler.ConfirmBooking)
				r.Post("/{bookingId}/coupon", handler.ApplyCoupon)
				r.Post("/{bookingId}/payment-intent", handler.CreatePaymentIntent)
				r.Get("/user/{userId}", handler.ListBookingsByUser)
				r.Get("/agent/{agentId}", handler.ListBookingsByAgent)
				r.Get("/event/{eventId}", handler.ListBookingsByEvent)
			})
			log.Info("ROUTER", "Booking routes registered under /api/booking")

			r.Route("/events/{eventId}", func(r chi.Router) {
				r.Get("/tiers", handler.ListTiers)
				r.Post("/availability", handler.CheckAvailability)
			})
			log.Info("ROUTER", "Event availability routes registered under /api/events")

			r.Route("/coupons", func(r chi.Router) {
				r.Post("/", handler.CreateCoupon)
				r.Get("/", handler.ListCoupons)
				r.Delete("/{couponId}", handler.DeactivateCoupon)
			})
			log.Info("ROUTER", "Coupon routes registered under /api/coupons")

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/scan", ticketHandler.Scan)
				r.Get("/{ticketId}/pdf", ticketHandler.GetTicketPDF)
				r.Get("/{ticketId}/scans", ticketHandler.GetScanHistory)
				r.Get("/booking/{bookingId}", ticketHandler.ListTicketsByBooking)
				r.Get("/user/{userId}", ticketHandler.ListTicketsByUser)
			})
			log.Info("ROUTER", "Ticket routes registered under /api/tickets")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("REDIS", "Starting hold expiry subscription")
	subscribeHoldExpiry(redisClient, bookingService, log)

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close Kafka producer: %v", err))
		}
	}
}
