package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-sales/internal/analytics"
	analytics_api "ms-sales/internal/analytics/api"
	"ms-sales/internal/auth"
	"ms-sales/internal/config"
	"ms-sales/internal/credit"
	"ms-sales/internal/credit/credit_api"
	credit_db "ms-sales/internal/credit/db"
	credit_redis "ms-sales/internal/credit/redis"
	"ms-sales/internal/database/migrations"
	"ms-sales/internal/kafka"
	"ms-sales/internal/logger"
	"ms-sales/internal/order"
	order_db "ms-sales/internal/order/db"
	"ms-sales/internal/order/order_api"
	"ms-sales/internal/payment/storage"
	qr "ms-sales/internal/tickets/qr_genrator"
	ticket_db "ms-sales/internal/tickets/db"
	tickets "ms-sales/internal/tickets/service"
	"ms-sales/internal/tickets/ticket_api"
	"ms-sales/internal/utils"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := cfg.Database.PostgresDSN()
	maxRetries := cfg.Database.ConnRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Redis.Addr == "" {
		log.Warn("REDIS", "REDIS_ADDR not set, credit status cache disabled")
		return bunDB, nil
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, credit status cache disabled: %v", cfg.Redis.Addr, err))
		redisClient.Close()
		return bunDB, nil
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

// requestLogger tags each request with an id and logs it once it completes.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

func healthHandler(payments storage.Store, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"database": "ok"}
		code := http.StatusOK
		if err := payments.HealthCheck(r.Context()); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				status["redis"] = err.Error()
			}
		}
		utils.WriteJSON(w, code, status)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}
	cfg := config.Load()

	log, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Prefix: cfg.Log.Prefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("APP", "Starting Sales Service initialization")
	ctx := context.Background()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{AutoMigrate: true, SeedData: cfg.Migrations.SeedData}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", fmt.Sprintf("Failed to close migrator: %v", err))
		}
	}

	var payments storage.Store = storage.NewPostgreSQLStore(bunDB, log)
	ticketStore := &ticket_db.DB{Bun: bunDB}

	ledger := &credit.Service{
		Store:           &credit_db.DB{Bun: bunDB},
		Catalog:         ticketStore,
		Payments:        payments,
		Logger:          log,
		AllowCreditDebt: cfg.Sale.AllowCreditDebt,
	}
	orderService := order.NewOrderService(bunDB, &order_db.DB{Bun: bunDB}, ticketStore, ledger, payments, log, cfg.Sale)

	if redisClient != nil {
		cache := credit_redis.NewCreditStatusCache(redisClient, cfg.Redis.CreditCacheTTL, log)
		ledger.Cache = cache
		orderService.Cache = cache
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.SaleCompleted, cfg.Kafka.Topics.CreditTransaction}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		ledger.Events = producer
		orderService.Events = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Info("KAFKA", "Kafka disabled, sale and ledger events are not published")
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize token verifier: %v", err))
	}
	if verifier == nil {
		log.Warn("AUTH", "Neither OIDC_ISSUER nor JWT_SECRET is set, API routes are unauthenticated")
	}

	ticketService := tickets.NewTicketService(ticketStore, qr.NewQRGenerator(cfg.Sale.QRSecret), log, cfg.Sale.MaxQuantityPerRow)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/healthz", healthHandler(payments, redisClient))

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api", func(r chi.Router) {
			ticket_api.NewHandler(ticketService, log).RegisterRoutes(r)
			credit_api.NewHandler(ledger, log).RegisterRoutes(r)
			order_api.NewHandler(orderService, log).RegisterRoutes(r)
			analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), log).RegisterRoutes(r)
		})
		log.Info("ROUTER", "Ticket, credit, sale and analytics routes registered under /api")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Sales Service running on %s", cfg.Server.Port))
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
		log.Info("HTTP", "✅ Sales Service shutdown complete")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}
