// Command server assembles the registry: stores, the factory service,
// the in-process platform bus, and the HTTP surface. Business logic
// lives in the internal packages; main only wires and supervises.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"hatchery/contracts/spawn"
	"hatchery/internal/audit"
	factoryhandler "hatchery/internal/factory/handler"
	factorymetrics "hatchery/internal/factory/metrics"
	factoryservice "hatchery/internal/factory/service"
	indexstore "hatchery/internal/factory/store/index"
	recordstore "hatchery/internal/factory/store/record"
	statestore "hatchery/internal/factory/store/state"
	"hatchery/internal/identity"
	"hatchery/internal/instance"
	"hatchery/internal/platform/config"
	"hatchery/internal/platform/httpserver"
	"hatchery/internal/platform/logger"
	"hatchery/internal/platform/middleware"
	"hatchery/internal/platform/postgres"
	platformredis "hatchery/internal/platform/redis"
	"hatchery/internal/platform/runtime"
	vkservice "hatchery/internal/viewingkey/service"
	keystore "hatchery/internal/viewingkey/store/key"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres and Redis are optional; without them the
	// registry runs on in-memory stores, which is how development and
	// the end-to-end suite operate.
	var (
		state   factoryservice.StateStore
		records factoryservice.RecordStore
		indices factoryservice.IndexStore
		keys    vkservice.Store
	)

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		state = statestore.NewPostgres(pool.Pool)
		records = recordstore.NewPostgres(pool.Pool)
		indices = indexstore.NewPostgres(pool.Pool)
		log.InfoContext(ctx, "using postgres stores")
	} else {
		state = statestore.NewInMemory()
		records = recordstore.NewInMemory()
		indices = indexstore.NewInMemory()
		log.InfoContext(ctx, "using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		keys = keystore.NewRedis(redisClient.Client)
		log.InfoContext(ctx, "using redis viewing-key store")
	} else {
		keys = keystore.New()
	}

	vk, err := vkservice.New(keys, vkservice.WithLogger(log))
	if err != nil {
		return err
	}

	// Audit trail. Kafka when brokers are configured, the in-process
	// trail otherwise.
	var (
		publisher   audit.Publisher
		auditWorker *audit.Worker
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers,
			audit.WithTopic(cfg.Kafka.Topic),
			audit.WithKafkaLogger(log),
		)
		if err != nil {
			return err
		}
		defer kafka.Close()
		publisher = kafka
		log.InfoContext(ctx, "audit trail on kafka", "topic", cfg.Kafka.Topic)
	} else {
		var trail audit.Store = audit.NewInMemoryStore()
		if cfg.Postgres.URL != "" {
			db, err := audit.OpenPostgres(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			trail = audit.NewPostgresStore(db)
			log.InfoContext(ctx, "audit trail on postgres")
		}
		inbox := make(chan audit.Event, 256)
		publisher = audit.NewChannelPublisher(inbox)
		auditWorker = audit.NewWorker(trail, inbox)
	}

	factory, err := factoryservice.New(state, records, indices, vk,
		factoryservice.WithLogger(log),
		factoryservice.WithMetrics(factorymetrics.New()),
		factoryservice.WithAuditPublisher(publisher),
	)
	if err != nil {
		return err
	}

	// Platform bus: spawn instructions become live instance workers.
	var bus *runtime.Bus
	spawner := func(self spawn.ServiceInfo, instr *spawn.Instruction) (runtime.Worker, spawn.ExecuteMsg, error) {
		return instance.New(self, instr, bus, instance.WithLogger(log))
	}
	bus, err = runtime.New(factory, cfg.Factory.FactoryCodeHash, spawner, runtime.WithLogger(log))
	if err != nil {
		return err
	}

	// A fresh deployment initializes; an existing one just verifies its
	// state is loadable.
	if err := factory.Reload(ctx); err != nil {
		template := spawn.TemplateVersion{ID: cfg.Factory.TemplateID, CodeHash: cfg.Factory.TemplateCodeHash}
		if err := factory.Init(ctx, template, spawn.Address(cfg.Factory.AdminAddress), cfg.Factory.BootSeedHex); err != nil {
			return err
		}
	}

	tokens := identity.NewTokenService(cfg.Server.JWTSigningKey, cfg.Server.TokenIssuer)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Recovery(log))

	router.Get("/healthz", healthz(pool, redisClient))
	router.Handle("/metrics", promhttp.Handler())
	factoryhandler.New(bus, log).Register(router, middleware.RequireIdentity(tokens, log))

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting hatchery", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if auditWorker != nil {
		g.Go(func() error {
			if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		// Outbox pump: handshake callbacks and deactivation notices are
		// delivered as their own transactions, off the request path.
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := bus.Drain(gctx); err != nil {
					log.WarnContext(gctx, "outbox delivery failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// healthz reports liveness plus the health of whichever backing stores
// are configured.
func healthz(pool *postgres.Pool, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if pool != nil {
			if err := pool.Health(ctx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
