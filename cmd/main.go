package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/RaikyD/trip-orders-service/internal/application"
	"github.com/RaikyD/trip-orders-service/internal/cache"
	"github.com/RaikyD/trip-orders-service/internal/config"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/kafka"
	"github.com/RaikyD/trip-orders-service/internal/logger"
	"github.com/RaikyD/trip-orders-service/internal/migrate"
	"github.com/RaikyD/trip-orders-service/internal/presentation"
	"github.com/RaikyD/trip-orders-service/internal/repository"
	"github.com/RaikyD/trip-orders-service/internal/storage"
	"github.com/RaikyD/trip-orders-service/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		logger.Error("service stopped", "err", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("dev")
		return err
	}
	logger.Init(cfg.LOG_MODE)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.OTEL_SERVICE_NAME, cfg.OTEL_EXPORTER_OTLP_ENDPOINT)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "err", err)
		}
	}()

	// Stores
	var (
		orders      repository.OrderRepo
		itineraries repository.ItineraryRepo
		users       repository.UserRepo
	)
	if cfg.DB_STRING != "" {
		if cfg.DB_MIGRATE {
			if err := migrate.Up(ctx, cfg.DB_STRING); err != nil {
				return err
			}
			logger.Info("db migrated")
		}

		pool, err := pgxpool.New(ctx, cfg.DB_STRING)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return err
		}
		logger.Info("db connected")

		refs := repository.NewReferenceRepository(pool)
		orders, itineraries, users = repository.NewOrderRepository(pool), refs, refs
	} else {
		logger.Warn("DB_STRING is empty; using in-memory stores")
		dir := repository.NewMemoryDirectory()
		seedDemoDirectory(dir)
		orders, itineraries, users = repository.NewMemoryOrderRepository(), dir, dir
	}

	if cfg.REDIS_ADDR != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.REDIS_ADDR})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; itinerary cache disabled", "addr", cfg.REDIS_ADDR, "err", err)
		} else {
			itineraries = cache.NewCachedItineraries(itineraries, cache.NewRedisCache(rdb, cfg.OTEL_SERVICE_NAME), cfg.ITINERARY_CACHE_TTL)
			logger.Info("itinerary cache enabled", "addr", cfg.REDIS_ADDR, "ttl", cfg.ITINERARY_CACHE_TTL.String())
		}
	}

	var (
		slips    storage.SlipStore
		slipsDir string
	)
	if cfg.SLIP_BUCKET != "" {
		gcs, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:       cfg.SLIP_BUCKET,
			CDNDomain:    cfg.SLIP_CDN_DOMAIN,
			EmulatorHost: cfg.STORAGE_EMULATOR_HOST,
		})
		if err != nil {
			return err
		}
		defer gcs.Close()
		slips = gcs
	} else {
		local, err := storage.NewLocalStore(cfg.SLIP_LOCAL_DIR, cfg.PUBLIC_BASE_URL+presentation.SlipsPath)
		if err != nil {
			return err
		}
		slips, slipsDir = local, local.Dir()
		logger.Info("storing payment slips on disk", "dir", slipsDir)
	}

	// Wiring
	svc := application.NewOrdersService(application.Deps{
		Orders:      orders,
		Itineraries: itineraries,
		Users:       users,
		Slips:       slips,
		CacheLimit:  cfg.CACHE_RESTORE_LIMIT,
	})
	if err := svc.RestoreCache(ctx, cfg.CACHE_RESTORE_LIMIT); err != nil {
		logger.Warn("restore cache failed", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var pub presentation.OrderPublisher
	if cfg.KAFKA_BROKERS != "" {
		prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_TOPIC)
		defer prod.Close()
		pub = prod

		g.Go(func() error {
			return kafka.RunConsumer(gctx, svc, kafka.ConsumerConfig{
				Brokers: cfg.KAFKA_BROKERS,
				Topic:   cfg.KAFKA_TOPIC,
				GroupID: cfg.KAFKA_GROUP_ID,
			})
		})
	} else {
		logger.Info("KAFKA_BROKERS is empty; asynchronous intake disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := presentation.NewOrdersHandler(svc, pub, presentation.NewAuthenticator(cfg.JWT_SECRET))
	h.Register(r)
	if slipsDir != "" {
		presentation.MountSlips(r, slipsDir)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting http", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// seedDemoDirectory fills the in-memory directory so a local run without a
// database can book something.
func seedDemoDirectory(dir *repository.MemoryDirectory) {
	it := domain.Itinerary{
		ID:          uuid.MustParse("8a6e0804-2bd0-4672-b79d-d97027f9071a"),
		Title:       "Knuckles range trek",
		Location:    "Matale",
		AverageCost: "LKR 25,000",
	}
	dir.PutItinerary(it)

	names := []string{"nimal", "kasuni", "ruwan"}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		u := domain.User{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte("demo-user-"+name)),
			Username: name,
			Email:    name + "@example.com",
		}
		dir.PutUser(u)
		ids = append(ids, u.ID.String())
	}
	logger.Info("demo directory seeded", "itinerary_id", it.ID, "user_ids", ids)
}
