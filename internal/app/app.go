package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/ibuy/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/ibuy/internal/health"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
	"github.com/vladislavdragonenkov/ibuy/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ibuy/internal/service/outbox"
	"github.com/vladislavdragonenkov/ibuy/internal/service/storefront"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/filestore"
	"github.com/vladislavdragonenkov/ibuy/internal/transport/rest"
	"github.com/vladislavdragonenkov/ibuy/internal/version"
)

const shutdownTimeout = 5 * time.Second

// ConfigureLogging выставляет формат и уровень логов по профилю.
func ConfigureLogging(cfg Config) {
	if cfg.Env == EnvProd {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Run поднимает REST API, сервер метрик, gRPC health и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки по сигналу.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly("storage", deps.closeFn, logger)

	publishers, err := initOutboxPublishers(cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly("outbox broker", publishers.closeFn, logger)

	images, err := filestore.NewImageStore(cfg.MediaDir, cfg.MediaURL)
	if err != nil {
		return err
	}

	svc := storefront.NewService(deps.store,
		storefront.WithLogger(logger.WithField("layer", "storefront")),
		storefront.WithMetrics(metrics.NewStoreMetrics()),
		storefront.WithImageStore(images),
		storefront.WithPasswordHasher(auth.NewBcryptHasher(0)),
		storefront.WithMaxImageSize(cfg.MaxImageSize()),
	)
	tokens := auth.NewTokenManager(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	api := rest.NewHandler(svc, tokens,
		rest.WithLogger(logger.WithField("layer", "rest")),
		rest.WithMetrics(metrics.NewHTTPMetrics()),
		rest.WithIdempotency(deps.idempotencyRepo),
		rest.WithPageSize(cfg.PageSize),
		rest.WithMaxImageSize(cfg.MaxImageSize()),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if publishers.publisher != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxStaleAfter))
	}

	grpcServer, grpcHealth := newGRPCServer(logger)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newAPIMux(api.Routes(), images.Root(), cfg.MediaURL),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newMetricsMux(healthHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		return err
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		_ = metricsLis.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("REST API слушает %s", apiLis.Addr())
		return serveHTTP(apiSrv, apiLis)
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis)
	})
	g.Go(func() error {
		logger.Infof("gRPC health слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	if publishers.publisher != nil {
		worker := outbox.NewWorker(deps.outboxRepo, publishers.publisher,
			outbox.WithLogger(logger.WithField("worker", "outbox")),
			outbox.WithDLQPublisher(publishers.dlq),
			outbox.WithMetrics(metrics.NewOutboxMetrics()),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics()),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newGRPCServer собирает gRPC сервер со стандартным health сервисом и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("ibuy.Store", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthServer)

	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	return srv, healthServer
}

// newAPIMux отдаёт загруженные изображения по mediaURL, остальное уходит в REST роутер.
func newAPIMux(api http.Handler, mediaRoot, mediaURL string) http.Handler {
	prefix := "/" + strings.Trim(mediaURL, "/") + "/"
	mux := http.NewServeMux()
	mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(mediaRoot))))
	mux.Handle("/", api)
	return mux
}

// newMetricsMux собирает служебные эндпоинты: /metrics, /healthz, /livez, /readyz.
func newMetricsMux(healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stopGRPC ждёт завершения активных RPC не дольше shutdownTimeout.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
