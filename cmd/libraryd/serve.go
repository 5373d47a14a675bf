package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/auth"
	"github.com/smartlibrary/library/internal/catalog"
	"github.com/smartlibrary/library/internal/circulation"
	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/events"
	grpcserver "github.com/smartlibrary/library/internal/grpc"
	"github.com/smartlibrary/library/internal/httpapi"
	"github.com/smartlibrary/library/internal/members"
	"github.com/smartlibrary/library/internal/metrics"
	"github.com/smartlibrary/library/internal/reports"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, health endpoints and the sweep consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()
			return serve(e)
		},
	}
}

// connectPublisher returns the broker publisher, or nil when RabbitMQ is
// not configured.
func connectPublisher(e *env) (*events.AMQPPublisher, error) {
	if e.cfg.RabbitMQURL == "" {
		e.log.Warn("RABBITMQ_URL not set, events disabled")
		return nil, nil
	}
	e.log.Info("Connecting to RabbitMQ")
	return events.NewAMQPPublisher(e.cfg.RabbitMQURL, e.log)
}

func newDispatcher(pub *events.AMQPPublisher, m *metrics.Metrics, log *zap.Logger) *events.Dispatcher {
	var p events.Publisher
	if pub != nil {
		p = pub
	}
	dispatcher := events.NewDispatcher(p, log)
	dispatcher.OnResult = m.EventPublished
	return dispatcher
}

func newCirculation(e *env, dispatcher *events.Dispatcher, m *metrics.Metrics) *circulation.Service {
	return circulation.NewService(e.store, dispatcher, m, e.log, circulation.Options{
		LoanPeriod:    e.cfg.LoanPeriod(),
		FineRateCents: e.cfg.FineRateCents,
	})
}

func serve(e *env) error {
	cfg, log := e.cfg, e.log
	log.Info("Library service starting")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCatalogCollector(e.store.Books.GetStats, log),
	)
	m := metrics.New(registry)

	publisher, err := connectPublisher(e)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}
	dispatcher := newDispatcher(publisher, m, log)

	authService, err := auth.NewService(e.store, log, auth.Options{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL(),
	})
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	if _, err := authService.EnsureBootstrapAdmin(context.Background(), cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	source, err := reports.NewSource(e.database)
	if err != nil {
		return err
	}
	circ := newCirculation(e, dispatcher, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var consumer *events.Consumer
	if cfg.RabbitMQURL != "" {
		consumer, err = events.NewConsumer(cfg.RabbitMQURL, cfg.ServiceName, circ, log)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("Consumer stopped", zap.Error(err))
			}
		}()
	}

	gin.SetMode(cfg.GinMode)
	router := httpapi.NewRouter(httpapi.Services{
		Catalog:     catalog.NewService(e.store, dispatcher, log),
		Members:     members.NewService(e.store, dispatcher, log, cfg.DefaultMaxBooks),
		Circulation: circ,
		Reports:     reports.NewService(source, log, cfg.FineRateCents),
		Auth:        authService,
		DB:          e.database,
		Events:      dispatcher,
		Metrics:     m,
	}, log)

	apiServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting API server", zap.String("address", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthHandler(e.database, dispatcher, log))
	healthMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	healthServer := &http.Server{
		Addr:              ":" + cfg.HTTPHealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP health server", zap.String("address", healthServer.Addr))
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	grpcServer := grpcserver.NewServer(grpcserver.NewHealthServer(cfg.ServiceName, e.database, dispatcher, log), log)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}
	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown error", zap.Error(err))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("Consumer close error", zap.Error(err))
		}
	}

	// Let in-flight events reach the broker before the publisher closes.
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for pending events")
	}

	log.Info("Server stopped")
	return nil
}

func healthHandler(database *db.DB, dispatcher *events.Dispatcher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			log.Error("Database health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: database connection failed"))
			return
		}

		if !dispatcher.Healthy() {
			log.Error("RabbitMQ health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: rabbitmq connection failed"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	}
}
