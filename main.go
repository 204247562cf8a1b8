package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	"ms-speakers/internal/analytics"
	analytics_api "ms-speakers/internal/analytics/api"
	"ms-speakers/internal/auth"
	"ms-speakers/internal/config"
	"ms-speakers/internal/database"
	"ms-speakers/internal/database/migrations"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/metrics"
	"ms-speakers/internal/models"
	referral_db "ms-speakers/internal/referral/db"
	"ms-speakers/internal/referral/referral_api"
	referral "ms-speakers/internal/referral/service"
	"ms-speakers/internal/sse"
	"ms-speakers/internal/suggestions/cache"
	suggestion_db "ms-speakers/internal/suggestions/db"
	suggestions "ms-speakers/internal/suggestions/service"
	"ms-speakers/internal/suggestions/suggestion_api"
	ticket_db "ms-speakers/internal/tickets/db"
	"ms-speakers/internal/tickets/qr"
	tickets "ms-speakers/internal/tickets/service"
	"ms-speakers/internal/tickets/ticket_api"
	"ms-speakers/internal/utils"
)

const ticketIssuedGroup = "speakers-referral-attribution"

type publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
	Close() error
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		log.Info("AUTH", fmt.Sprintf("Verifying tokens against OIDC issuer %s", cfg.OIDCIssuer))
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
	log.Info("AUTH", "Verifying tokens with shared HMAC secret")
	return auth.NewHMACVerifier(cfg.JWTSecret), nil
}

func newPublisher(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) publisher {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events will not be published")
		return kafka.NewNoopProducer(log)
	}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Brokers))
	return kafka.NewProducer(cfg.Brokers, log)
}

func newSuggestionCache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (suggestions.ListCache, *redis.Client) {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, suggestion list is read from the database on every request")
		return nil, nil
	}
	client, err := cache.Connect(ctx, cfg, log)
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Continuing without suggestion cache: %v", err))
		return nil, nil
	}
	return cache.New(client, cfg.SuggestionCacheTTL), client
}

type services struct {
	referrals   *referral.Service
	suggestions *suggestions.Service
	tickets     *tickets.TicketService
	analytics   *analytics.Service
	checkins    *sse.CheckinEmitter
	roles       auth.RoleChecker
	verifier    auth.Verifier
}

func newRouter(cfg *config.Config, svc services, reg *prometheus.Registry, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(utils.RequestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	admin := auth.RequireRole(svc.roles, log, models.RoleAdmin)
	scanner := auth.RequireRole(svc.roles, log, models.RoleScanner, models.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(svc.verifier, cfg.Auth.SessionCookie, log))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

			referral_api.NewHandler(svc.referrals, log).RegisterRoutes(r, admin)
			suggestion_api.NewHandler(svc.suggestions, log).RegisterRoutes(r, admin)
			ticket_api.NewHandler(svc.tickets, log).RegisterRoutes(r, scanner)
			analytics_api.NewHandler(svc.analytics, log).RegisterRoutes(r, admin)
		})
		ticket_api.NewStreamHandler(svc.checkins, log).RegisterRoutes(r, scanner)
	})
	log.Info("ROUTER", "Referral, suggestion, ticket and analytics routes registered under /api")
	return r
}

func runMigrations(bunDB *bun.DB, dir string, log *logger.Logger) error {
	runner := migrations.NewRunner(bunDB, dir, log)
	if err := runner.Initialize(); err != nil {
		return err
	}
	return runner.Up()
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	defer log.Close()
	log.SetLevel(cfg.Log.Level)
	log.Info("APP", "Starting speakers service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		// The runner is not closed: closing it would close bunDB's pool too.
		if err := runMigrations(bunDB, cfg.Database.MigrationsDir, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	listCache, redisClient := newSuggestionCache(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	events := newPublisher(ctx, cfg.Kafka, log)
	defer events.Close()

	verifier, err := newVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	qrGen, err := qr.NewGenerator(cfg.Tickets.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid QR secret: %v", err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	referralService := referral.NewService(&referral_db.DB{Bun: bunDB}, events, cfg.Kafka.Topics.ReferralAttributed, m, log)
	checkins := sse.NewCheckinEmitter()
	ticketService := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB}, referralService, qrGen, events, cfg.Kafka.Topics.TicketIssued, m, log)
	ticketService.Checkins = checkins
	suggestionService := suggestions.NewService(&suggestion_db.DB{Bun: bunDB}, listCache, events, cfg.Kafka.Topics.SuggestionMerged, m, log)
	if redisClient != nil {
		suggestionService.Locks = cache.NewMergeLock(redisClient, cfg.Redis.MergeLockTTL)
	}
	svc := services{
		referrals:   referralService,
		suggestions: suggestionService,
		tickets:     ticketService,
		analytics:   analytics.NewService(bunDB),
		checkins:    checkins,
		roles:       &auth.RoleDB{Bun: bunDB},
		verifier:    verifier,
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketIssued, ticketIssuedGroup, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, referral_api.TicketIssuedHandler(referralService, log)); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Ticket consumer stopped: %v", err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      newRouter(cfg, svc, reg, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	server.RegisterOnShutdown(checkins.Close)

	go func() {
		log.Info("HTTP", fmt.Sprintf("Speakers service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP", fmt.Sprintf("HTTP server error: %v", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "Speakers service shutdown complete")
}
