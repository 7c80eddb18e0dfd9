package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/config"
	"github.com/kirinyoku/tix-reserve/internal/messaging"
	"github.com/kirinyoku/tix-reserve/internal/postgres"
	"github.com/kirinyoku/tix-reserve/internal/redis"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/kirinyoku/tix-reserve/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-reserve/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-reserve/internal/repository/redis"
	"github.com/kirinyoku/tix-reserve/internal/retry"
	"github.com/kirinyoku/tix-reserve/internal/service"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/kirinyoku/tix-reserve/internal/service/catalog"
	"github.com/kirinyoku/tix-reserve/internal/service/holds"
	httpgin "github.com/kirinyoku/tix-reserve/internal/transport/http/gin"
	"github.com/kirinyoku/tix-reserve/internal/worker"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	msgRouter  *message.Router
	sweeper    *worker.Sweeper
	closers    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(context.Background()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	clk := clock.Real{}

	// Initialize store
	var store repository.Store
	switch cfg.Store.Driver {
	case config.StoreMemory:
		a.logger.Warn("using in-memory store; reservations are lost on restart")
		store = memory.New(clk)
	default:
		pgxPool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN(), MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pgxPool.Close)

		if cfg.Postgres.Migrate {
			if err := postgresrepo.Migrate(ctx, pgxPool); err != nil {
				return fmt.Errorf("failed to migrate postgres: %w", err)
			}
		}
		store = postgresrepo.NewStore(pgxPool, clk)
	}

	// Initialize redis-backed collaborators
	var (
		deps     service.Deps
		httpDeps httpgin.Deps
		wlogger  = messaging.NewSlogAdapter(a.logger)
		sub      message.Subscriber
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		pubsub := redisrepo.NewSeatsPubSub(rdb)
		deps.Cache = redisrepo.NewSeatCache(rdb, a.logger)
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, cfg.Holds.RateLimit, cfg.Holds.RateWindow)
		deps.Notifier = pubsub
		httpDeps.Idempotency = redisrepo.NewIdempotencyStore(rdb, cfg.Holds.IdempotencyTTL)
		httpDeps.Seats = pubsub

		if cfg.Messaging.Enabled {
			pub, err := messaging.NewRedisPublisher(rdb, wlogger)
			if err != nil {
				return fmt.Errorf("failed to initialize publisher: %w", err)
			}
			a.closers = append(a.closers, func() { _ = pub.Close() })
			deps.Publisher = messaging.NewBookingEventPublisher(pub)

			if sub, err = messaging.NewRedisSubscriber(rdb, wlogger); err != nil {
				return fmt.Errorf("failed to initialize subscriber: %w", err)
			}
		}
	} else {
		a.logger.Warn("REDIS_ADDR not set; cache, rate limiting, idempotency keys and messaging are disabled")
	}

	// Initialize services
	services, err := service.NewServices(store, clk, deps, a.logger, service.Config{
		Catalog: catalog.Config{CacheTTL: cfg.Holds.CatalogCacheTTL},
		Holds: holds.Config{
			DefaultTTL:      cfg.Holds.DefaultTTL,
			MinTTL:          cfg.Holds.MinTTL,
			MaxTTL:          cfg.Holds.MaxTTL,
			MaxHoldLifetime: cfg.Holds.MaxLifetime,
			MaxRenewals:     cfg.Holds.MaxRenewals,
			MaxSeatsPerHold: cfg.Holds.MaxSeats,
			SweepBatchSize:  cfg.Sweep.BatchSize,
			SweepMaxBatches: cfg.Sweep.MaxBatches,
			Retry:           retry.DefaultConfig(),
		},
		Booking: booking.Config{
			CheckoutTimeout: cfg.Checkout.Timeout,
			HoldTTL:         cfg.Holds.DefaultTTL,
			Retry:           retry.DefaultConfig(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize message router
	if sub != nil {
		a.msgRouter, err = messaging.NewRouter(sub, messaging.NewPaymentHandler(services.Booking, a.logger), wlogger, a.logger, messaging.RouterConfig{})
		if err != nil {
			return fmt.Errorf("failed to initialize message router: %w", err)
		}
	}

	a.sweeper = worker.NewSweeper(services.Holds, services.Booking, a.logger, worker.SweeperConfig{
		Interval:      cfg.Sweep.Interval,
		CheckoutBatch: cfg.Sweep.CheckoutBatch,
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpDeps, a.logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expiry sweep
	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	// Payment outcomes
	if a.msgRouter != nil {
		g.Go(func() error {
			return a.msgRouter.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
