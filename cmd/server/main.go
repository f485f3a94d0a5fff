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

	"golang.org/x/sync/errgroup"

	"enrolld/internal/enrollment/client"
	"enrolld/internal/enrollment/metrics"
	"enrolld/internal/enrollment/models"
	"enrolld/internal/enrollment/service"
	"enrolld/internal/enrollment/token"
	"enrolld/internal/enrollment/userinfo"
	jwttoken "enrolld/internal/jwt_token"
	"enrolld/internal/platform/config"
	"enrolld/internal/platform/httpserver"
	"enrolld/internal/platform/logger"
	platformredis "enrolld/internal/platform/redis"
	httptransport "enrolld/internal/transport/http"
	audit "enrolld/pkg/platform/audit"
	"enrolld/pkg/platform/audit/publisher"
	auditmemory "enrolld/pkg/platform/audit/store/memory"
	auditpostgres "enrolld/pkg/platform/audit/store/postgres"
	"enrolld/pkg/platform/audit/worker"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var cache token.Cache
	if redisClient != nil {
		cache = token.NewRedisCache(redisClient)
		log.Info("token cache backed by redis")
	} else {
		cache = token.NewMemoryCache()
		log.Info("token cache in memory")
	}

	auditStore, closeStore, err := buildAuditStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	auditPub := publisher.New(256, log)
	auditWorker := worker.NewWorker(auditStore, auditPub.Events())

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "enrolld", "enrolld-api")
	validator := jwttoken.NewMiddlewareAdapter(jwtService)

	enrollSvc := service.New(service.Options{
		TokenService: token.NewHTTPService(cfg.OAuth),
		InfoFetcher:  userinfo.New(cfg.OAuth, log),
		NewClient:    func() client.Client { return client.NewDMClient(cfg.DM, log) },
		Cache:        cache,
		OAuth:        cfg.OAuth,
		Enrollment: service.EnrollmentSettings{
			RegistrationType: models.RegistrationType(cfg.Enrollment.RegistrationType),
			ForceLoadPolicy:  cfg.Enrollment.ForceLoadPolicy,
			AttemptTimeout:   cfg.Enrollment.AttemptTimeout,
		},
		Audit:   auditPub,
		Metrics: m,
		Logger:  log,
	})

	router := httptransport.NewRouter(log,
		httptransport.NewEnrollHandler(enrollSvc, validator, log),
		httptransport.NewAuditHandler(auditStore, validator, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting enrolld", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
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

	return g.Wait()
}

func buildAuditStore(cfg config.Config, log *slog.Logger) (audit.Store, func(), error) {
	if cfg.Postgres.URL == "" {
		log.Info("audit trail in memory")
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}

	store, err := auditpostgres.Open(cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit trail backed by postgres")
	return store, func() { _ = store.Close() }, nil
}
