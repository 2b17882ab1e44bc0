package main // central reservation API

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"

    "github.com/iliyamo/smart-parking/internal/config"
    "github.com/iliyamo/smart-parking/internal/database"
    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/lock"
    "github.com/iliyamo/smart-parking/internal/logging"
    "github.com/iliyamo/smart-parking/internal/metrics"
    "github.com/iliyamo/smart-parking/internal/middleware"
    "github.com/iliyamo/smart-parking/internal/pricing"
    "github.com/iliyamo/smart-parking/internal/queue"
    "github.com/iliyamo/smart-parking/internal/repository"
    "github.com/iliyamo/smart-parking/internal/reservation"
    "github.com/iliyamo/smart-parking/internal/router"
)

func main() {
    cfg := config.Load()
    logger := logging.Setup("parking-api", cfg.Env, cfg.LogLevel)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    m := metrics.New(reg)

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        logger.Error("database connection failed", slog.Any("error", err))
        os.Exit(1)
    }
    defer db.Close()
    if cfg.AutoMigrate {
        if err := database.Migrate(ctx, db); err != nil {
            logger.Error("schema migration failed", slog.Any("error", err))
            os.Exit(1)
        }
    }

    rdb := config.NewRedisClient(logger)
    var locker lock.Locker = lock.NewLocal()
    if rdb != nil {
        defer rdb.Close()
        locker = lock.NewRedis(rdb, cfg.SpotLockTTL, cfg.SpotLockWait, logger)
    }

    broker := queue.NewBroker(cfg.RabbitURL, cfg.Exchange, queue.WithLogger(logger), queue.WithMetrics(m))
    if err := broker.Open(ctx); err != nil {
        // Publishes reopen lazily; admissions still persist with published=false.
        logger.Warn("broker unavailable at start-up", slog.Any("error", err))
    }
    defer broker.Close()

    gateway := pricing.NewGateway(cfg.PricingURL,
        pricing.WithHTTPClient(&http.Client{Timeout: cfg.PricingTimeout}),
        pricing.WithMetrics(m),
    )

    users := repository.NewUserRepo(db)
    spots := repository.NewSpotRepo(db)
    reservations := repository.NewReservationRepo(db)

    svc := reservation.NewService(users, spots, reservations, gateway, queue.NewPublisher(broker),
        reservation.WithLocker(locker),
        reservation.WithLogger(logger),
        reservation.WithMetrics(m),
    )

    e := echo.New()
    e.HideBanner = true
    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())

    // The limiter runs inside each route's chain, after authentication.
    guard := router.Guard{
        Secret: cfg.JWTSecret,
        Limit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger),
    }
    router.RegisterRoutes(e, db)
    router.RegisterMetrics(e, reg)
    router.RegisterSpots(e, handler.NewSpotHandler(spots), guard)
    router.RegisterReservations(e, handler.NewReservationHandler(svc), guard)

    var cache echo.MiddlewareFunc
    if rdb != nil {
        cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
    }
    router.RegisterUsers(e, handler.NewUserHandler(users), guard, cache)

    if cfg.JWTSecret == "" {
        logger.Warn("JWT_SECRET not set; API routes are unauthenticated")
    }

    addr := ":" + cfg.Port
    go func() {
        logger.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("http server failed", slog.Any("error", err))
            stop()
        }
    }()

    <-ctx.Done()
    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := e.Shutdown(shutdownCtx); err != nil {
        logger.Error("http shutdown", slog.Any("error", err))
    }
}
