package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/waqasameen944/Bus-Booking-System/internal/cache"
	"github.com/waqasameen944/Bus-Booking-System/internal/config" // Internal config loader
	"github.com/waqasameen944/Bus-Booking-System/internal/database"
	"github.com/waqasameen944/Bus-Booking-System/internal/handler"
	"github.com/waqasameen944/Bus-Booking-System/internal/lock"
	"github.com/waqasameen944/Bus-Booking-System/internal/middleware"
	"github.com/waqasameen944/Bus-Booking-System/internal/payment"
	"github.com/waqasameen944/Bus-Booking-System/internal/queue"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
	"github.com/waqasameen944/Bus-Booking-System/internal/router" // Internal router setup
	"github.com/waqasameen944/Bus-Booking-System/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	users := repository.NewUserRepo(db)
	if cfg.AdminEmail != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.WithError(err).Fatal("bootstrap admin failed")
		}
		if created {
			log.WithField("email", cfg.AdminEmail).Info("bootstrap admin created")
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}

	// Seat selection is serialized per (date, slot).  The Redis lock extends
	// that across instances; without Redis only one instance may run.
	var locker service.Locker = lock.NewKeyed()
	var availability service.AvailabilityCache
	if rdb != nil {
		if cfg.LockBackend == "redis" {
			locker = lock.NewRedis(rdb, "busbooking:lock", cfg.LockTTL)
		}
		availability = cache.NewAvailability(rdb, "busbooking", cfg.AvailabilityTTL, log)
	}
	log.WithField("backend", cfg.LockBackend).WithField("redis", rdb != nil).Info("schedule locking configured")

	ledger := service.NewLedger(repository.NewScheduleRepo(db), cfg.Booking, availability)
	bookingRepo := repository.NewBookingRepo(db)
	bookings := service.NewBookingStore(bookingRepo, cfg.Booking)
	orch := service.NewOrchestrator(ledger, bookings, locker, cfg.Booking, log)
	reports := service.NewReports(bookingRepo, cfg.Booking)

	var notifier service.Notifier
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, cfg.Booking.Label, log)
		defer pub.Close()
		notifier = pub
		go queue.NewConsumer(cfg.RabbitURL, "logs", log).Run(ctx)
	} else {
		log.Warn("RABBITMQ_URL not set, booking notifications disabled")
	}

	var (
		provider service.PaymentProvider
		verifier handler.WebhookVerifier
	)
	if cfg.Payment.SecretKey != "" {
		s := payment.NewStripe(cfg.Payment.SecretKey, cfg.Payment.WebhookSecret)
		provider, verifier = s, s
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, payment endpoints disabled")
	}
	payments := service.NewPaymentAdapter(bookings, provider, notifier, cfg.Payment.Currency, log)

	if cfg.ReconcileInterval > 0 {
		go orch.RunReconciler(ctx, cfg.ReconcileInterval)
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	responseCache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	router.RegisterRoutes(e, db) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, log), cfg.JWTSecret)
	router.RegisterBookings(e,
		handler.NewBookingHandler(orch, cfg.Booking, log),
		handler.NewPaymentHandler(payments, verifier, cfg.Booking, log),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterAdmin(e,
		handler.NewAdminHandler(orch, reports, responseCache, cfg.Booking, log),
		cfg.JWTSecret, responseCache.Middleware())

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
